package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/erc7824/ledgergate/pkg/sign"
)

// Encode serializes values in the schema's field order. Fields not declared
// by the schema are ignored. On error nothing is returned.
func (s *Schema) Encode(values Values) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("schema %s: %w %q", s.Name, ErrMissingField, f.Name)
		}
		if err := s.encodeField(&buf, f, v); err != nil {
			return nil, fmt.Errorf("schema %s: field %q: %w", s.Name, f.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func (s *Schema) encodeField(buf *bytes.Buffer, f Field, v any) error {
	switch f.Type {
	case TypeU32, TypeU64, TypeU128:
		u, err := toUint(v)
		if err != nil {
			return err
		}
		return putUint(buf, u, f.Type.width())

	case TypeBytes:
		b, err := toBytes(v)
		if err != nil {
			return err
		}
		if uint64(len(b)) > uint64(^uint32(0)) {
			return fmt.Errorf("%w: %d bytes", ErrIntegerOverflow, len(b))
		}
		if s.LengthPrefix == PrefixCompact {
			buf.Write(appendCompact(nil, uint32(len(b))))
		} else {
			buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(b))))
		}
		buf.Write(b)
		return nil

	case TypeH256, TypeAccountID:
		b, err := toFixed(v)
		if err != nil {
			return err
		}
		if len(b) != f.Type.width() {
			return fmt.Errorf("%w: want %d bytes, got %d", ErrLengthMismatch, f.Type.width(), len(b))
		}
		buf.Write(b)
		return nil
	}
	return fmt.Errorf("%w: unsupported type %q", ErrTypeMismatch, f.Type)
}

// putUint writes the low width bytes of u little-endian after a range check.
func putUint(buf *bytes.Buffer, u *uint256.Int, width int) error {
	if u.BitLen() > width*8 {
		return fmt.Errorf("%w: %s does not fit in %d bits", ErrIntegerOverflow, u.Dec(), width*8)
	}
	be := u.Bytes32()
	for i := 0; i < width; i++ {
		buf.WriteByte(be[31-i])
	}
	return nil
}

func toUint(v any) (*uint256.Int, error) {
	switch v := v.(type) {
	case *uint256.Int:
		if v == nil {
			break
		}
		return v, nil
	case *big.Int:
		if v == nil {
			break
		}
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative value %s", ErrIntegerOverflow, v)
		}
		u, overflow := uint256.FromBig(v)
		if overflow {
			return nil, fmt.Errorf("%w: %s", ErrIntegerOverflow, v)
		}
		return u, nil
	case uint8:
		return uint256.NewInt(uint64(v)), nil
	case uint16:
		return uint256.NewInt(uint64(v)), nil
	case uint32:
		return uint256.NewInt(uint64(v)), nil
	case uint64:
		return uint256.NewInt(v), nil
	case uint:
		return uint256.NewInt(uint64(v)), nil
	case int:
		return fromSigned(int64(v))
	case int32:
		return fromSigned(int64(v))
	case int64:
		return fromSigned(v)
	}
	return nil, fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, v)
}

func fromSigned(v int64) (*uint256.Int, error) {
	if v < 0 {
		return nil, fmt.Errorf("%w: negative value %d", ErrIntegerOverflow, v)
	}
	return uint256.NewInt(uint64(v)), nil
}

func toBytes(v any) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: %T is not a byte string", ErrTypeMismatch, v)
}

func toFixed(v any) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case [32]byte:
		return v[:], nil
	case sign.AccountID:
		return v[:], nil
	}
	return nil, fmt.Errorf("%w: %T is not a fixed-size byte array", ErrTypeMismatch, v)
}
