// Package fixedpoint converts human decimal amounts to the scaled integers
// stored on the ledger and back.
//
// Digits beyond the requested precision are truncated toward zero, never
// rounded: "1.999" at 2 digits is 199, and "-1.999" is -199.
package fixedpoint

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erc7824/ledgergate/pkg/errcode"
)

// DefaultDigits is the number of fractional digits of ledger balances.
const DefaultDigits = 14

var ErrInvalidDecimalFormat = errcode.New(errcode.InvalidDecimalFormat, "invalid decimal format")

var decimalShape = regexp.MustCompile(`^-?\d+(\.\d*)?$`)

// Parse validates s and returns it as a decimal. Exponents, leading '+',
// whitespace and bare fractions such as ".5" are rejected.
func Parse(s string) (decimal.Decimal, error) {
	if !decimalShape.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalFormat, s)
	}

	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrInvalidDecimalFormat, s, err)
	}
	return d, nil
}

// ToFixedPoint returns s scaled by 10^digits, truncating extra fractional digits.
func ToFixedPoint(s string, digits int32) (*big.Int, error) {
	if digits < 0 {
		return nil, fmt.Errorf("negative precision %d", digits)
	}

	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return d.Truncate(digits).Shift(digits).BigInt(), nil
}

// FromFixedPoint renders v / 10^digits as the shortest exact decimal string.
func FromFixedPoint(v *big.Int, digits int32) string {
	return decimal.NewFromBigInt(v, -digits).String()
}
