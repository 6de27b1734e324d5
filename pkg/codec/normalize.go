package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/erc7824/ledgergate/pkg/fixedpoint"
	"github.com/erc7824/ledgergate/pkg/sign"
)

var integerShape = regexp.MustCompile(`^-?\d+$`)

// Normalize builds the typed values of the schema from raw request fields,
// as decoded by encoding/json with UseNumber. Every declared field must be
// present; extra fields are ignored. Nothing is coerced silently: a value
// that does not fit its rule is an error.
func (s *Schema) Normalize(raw map[string]any) (Values, error) {
	values := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("schema %s: %w %q", s.Name, ErrMissingField, f.Name)
		}

		nv, err := normalizeField(f, v)
		if err != nil {
			return nil, fmt.Errorf("schema %s: field %q: %w", s.Name, f.Name, err)
		}
		values[f.Name] = nv
	}
	return values, nil
}

func normalizeField(f Field, v any) (any, error) {
	switch f.Normalize {
	case RuleInteger:
		n, err := parseInteger(v)
		if err != nil {
			return nil, err
		}
		return n, checkRange(f.Type, n)

	case RuleDecimal:
		text, err := numberText(v)
		if err != nil {
			return nil, err
		}
		digits := f.Digits
		if digits == 0 {
			digits = fixedpoint.DefaultDigits
		}
		n, err := fixedpoint.ToFixedPoint(text, digits)
		if err != nil {
			return nil, err
		}
		return n, checkRange(f.Type, n)

	case RulePercent:
		n, err := scalePercent(f, v)
		if err != nil {
			return nil, err
		}
		return n, checkRange(f.Type, n)

	case RuleText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want a string, got %T", ErrTypeMismatch, v)
		}
		return []byte(s), nil

	case RuleHex:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want a hex string, got %T", ErrTypeMismatch, v)
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		if w := f.Type.width(); w > 0 && len(b) != w {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrLengthMismatch, w, len(b))
		}
		if f.Type == TypeAccountID {
			return sign.AccountID(b), nil
		}
		return b, nil

	case RuleAccount:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want an address, got %T", ErrTypeMismatch, v)
		}
		id, err := sign.ParseAccountID(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: unknown rule %q", ErrTypeMismatch, f.Normalize)
}

// numberText returns the literal text of a numeric value.
func numberText(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	}
	return "", fmt.Errorf("%w: want a number, got %T", ErrTypeMismatch, v)
}

func parseInteger(v any) (*big.Int, error) {
	if f, ok := v.(float64); ok && (f != math.Trunc(f) || math.IsInf(f, 0)) {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, f)
	}

	text, err := numberText(v)
	if err != nil {
		return nil, err
	}
	if !integerShape.MatchString(text) {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, text)
	}
	n, _ := new(big.Int).SetString(text, 10)
	return n, nil
}

func scalePercent(f Field, v any) (*big.Int, error) {
	text, err := numberText(v)
	if err != nil {
		return nil, err
	}
	d, err := fixedpoint.Parse(strings.TrimSuffix(text, "%"))
	if err != nil {
		return nil, err
	}

	scaled := d.Mul(decimal.NewFromInt(f.Scale))
	switch f.Rounding {
	case RoundHalfAwayFromZero:
		scaled = scaled.Round(0)
	case RoundTruncate:
		scaled = scaled.Truncate(0)
	case RoundExact:
		if !scaled.IsInteger() {
			return nil, fmt.Errorf("%w: %s×%d is not an integer", ErrTypeMismatch, text, f.Scale)
		}
	}
	return scaled.BigInt(), nil
}

func checkRange(t Type, n *big.Int) error {
	if n.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrIntegerOverflow, n)
	}
	u, overflow := uint256.FromBig(n)
	if overflow || u.BitLen() > t.width()*8 {
		return fmt.Errorf("%w: %s does not fit in %s", ErrIntegerOverflow, n, t)
	}
	return nil
}
