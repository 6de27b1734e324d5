// Package codec turns loosely typed request fields into the exact byte
// layout the ledger decodes.
//
// A Schema is an ordered list of typed fields. Encoding walks the fields in
// declaration order, so the byte layout never depends on how the input map
// was built:
//
//	u32, u64, u128   little-endian, fixed width
//	bytes            length prefix (u32 LE, or SCALE compact) then raw bytes
//	h256             exactly 32 raw bytes
//	account_id       exactly 32 raw bytes
//
// Schemas are data. They are registered once at startup, usually from
// schemas.yaml, and the Registry is read-only afterwards, so it can be shared
// by any number of request handlers. Changing the order or type of a field
// breaks every ledger decoder; new fields go at the end, anything else gets
// a new schema name.
package codec

import (
	"errors"
	"fmt"

	"github.com/erc7824/ledgergate/pkg/errcode"
)

var (
	ErrUnknownSchema   = errcode.New(errcode.UnknownSchema, "unknown schema")
	ErrMissingField    = errcode.New(errcode.MissingField, "missing field")
	ErrTypeMismatch    = errcode.New(errcode.TypeMismatch, "type mismatch")
	ErrIntegerOverflow = errcode.New(errcode.IntegerOverflow, "integer overflow")
	ErrLengthMismatch  = errcode.New(errcode.LengthMismatch, "length mismatch")

	ErrInvalidSchema = errors.New("invalid schema")
)

// Type is the wire type of a field.
type Type string

const (
	TypeU32       Type = "u32"
	TypeU64       Type = "u64"
	TypeU128      Type = "u128"
	TypeBytes     Type = "bytes"
	TypeH256      Type = "h256"
	TypeAccountID Type = "account_id"
)

// width is the encoded size of fixed-width types, 0 for bytes.
func (t Type) width() int {
	switch t {
	case TypeU32:
		return 4
	case TypeU64:
		return 8
	case TypeU128:
		return 16
	case TypeH256, TypeAccountID:
		return 32
	default:
		return 0
	}
}

func (t Type) isInteger() bool {
	return t == TypeU32 || t == TypeU64 || t == TypeU128
}

func (t Type) valid() bool {
	return t.isInteger() || t == TypeBytes || t == TypeH256 || t == TypeAccountID
}

// Rule names the normalization applied to a raw request value.
type Rule string

const (
	// RuleInteger accepts base-10 digit strings and JSON integers.
	RuleInteger Rule = "integer"
	// RuleDecimal converts a decimal amount to fixed point.
	RuleDecimal Rule = "decimal"
	// RulePercent multiplies by Field.Scale and applies Field.Rounding.
	RulePercent Rule = "percent"
	// RuleText takes the UTF-8 bytes of a string.
	RuleText Rule = "text"
	// RuleHex decodes a 0x-prefixed string.
	RuleHex Rule = "hex"
	// RuleAccount accepts an SS58 address or hex of an account id or secp256k1 key.
	RuleAccount Rule = "account"
)

// Rounding is how a scaled percentage becomes an integer.
type Rounding string

const (
	RoundHalfAwayFromZero Rounding = "half_away_from_zero"
	RoundTruncate         Rounding = "truncate"
	// RoundExact rejects values that are not integers after scaling.
	RoundExact Rounding = "exact"
)

// LengthPrefix selects how bytes fields are framed.
type LengthPrefix string

const (
	PrefixU32     LengthPrefix = "u32"
	PrefixCompact LengthPrefix = "compact"
)

// Field is one entry of a schema.
type Field struct {
	Name      string   `yaml:"name" json:"name"`
	Type      Type     `yaml:"type" json:"type"`
	Normalize Rule     `yaml:"normalize,omitempty" json:"normalize"`
	Scale     int64    `yaml:"scale,omitempty" json:"scale,omitempty"`
	Rounding  Rounding `yaml:"rounding,omitempty" json:"rounding,omitempty"`
	// Digits is the fixed-point precision of decimal fields; 0 selects fixedpoint.DefaultDigits.
	Digits int32 `yaml:"fractional_digits,omitempty" json:"fractional_digits,omitempty"`
}

// Schema is a named, ordered parameter set.
type Schema struct {
	Name         string       `yaml:"name" json:"name"`
	LengthPrefix LengthPrefix `yaml:"length_prefix,omitempty" json:"length_prefix"`
	Fields       []Field      `yaml:"fields" json:"fields"`
}

// Values maps field names to normalized Go values.
//
// Integers are *big.Int (other Go integer types and *uint256.Int are also
// accepted by Encode), bytes and h256 are []byte, account_id is
// sign.AccountID.
type Values map[string]any

// defaults fills in omitted settings and rejects inconsistent ones.
func (s *Schema) defaults() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSchema)
	}
	switch s.LengthPrefix {
	case "":
		s.LengthPrefix = PrefixU32
	case PrefixU32, PrefixCompact:
	default:
		return fmt.Errorf("%w: %s: unknown length prefix %q", ErrInvalidSchema, s.Name, s.LengthPrefix)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: %s: no fields", ErrInvalidSchema, s.Name)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidSchema, s.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSchema, s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		if err := f.defaults(); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, s.Name, f.Name, err)
		}
	}
	return nil
}

func (f *Field) defaults() error {
	if !f.Type.valid() {
		return fmt.Errorf("unknown type %q", f.Type)
	}

	if f.Normalize == "" {
		switch {
		case f.Type.isInteger():
			f.Normalize = RuleInteger
		case f.Type == TypeBytes:
			f.Normalize = RuleText
		case f.Type == TypeH256:
			f.Normalize = RuleHex
		case f.Type == TypeAccountID:
			f.Normalize = RuleAccount
		}
	}

	switch f.Normalize {
	case RuleInteger, RuleDecimal:
		if !f.Type.isInteger() {
			return fmt.Errorf("rule %s needs an integer type, got %s", f.Normalize, f.Type)
		}
		if f.Digits < 0 {
			return fmt.Errorf("negative fractional digits %d", f.Digits)
		}
	case RulePercent:
		if !f.Type.isInteger() {
			return fmt.Errorf("rule percent needs an integer type, got %s", f.Type)
		}
		if f.Scale <= 0 {
			return fmt.Errorf("rule percent needs a positive scale")
		}
		switch f.Rounding {
		case RoundHalfAwayFromZero, RoundTruncate, RoundExact:
		default:
			return fmt.Errorf("rule percent needs a rounding, got %q", f.Rounding)
		}
	case RuleText:
		if f.Type != TypeBytes {
			return fmt.Errorf("rule text needs bytes, got %s", f.Type)
		}
	case RuleHex:
		if f.Type != TypeBytes && f.Type != TypeH256 && f.Type != TypeAccountID {
			return fmt.Errorf("rule hex needs a byte type, got %s", f.Type)
		}
	case RuleAccount:
		if f.Type != TypeAccountID {
			return fmt.Errorf("rule account needs account_id, got %s", f.Type)
		}
	default:
		return fmt.Errorf("unknown rule %q", f.Normalize)
	}
	return nil
}
