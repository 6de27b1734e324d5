package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"

	"github.com/erc7824/ledgergate/pkg/sign"
)

// Decode is the inverse of Encode. Trailing bytes are an error.
func (s *Schema) Decode(data []byte) (Values, error) {
	values := make(Values, len(s.Fields))
	rest := data
	for _, f := range s.Fields {
		v, n, err := s.decodeField(f, rest)
		if err != nil {
			return nil, fmt.Errorf("schema %s: field %q: %w", s.Name, f.Name, err)
		}
		values[f.Name] = v
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("schema %s: %w: %d trailing bytes", s.Name, ErrLengthMismatch, len(rest))
	}
	return values, nil
}

func (s *Schema) decodeField(f Field, data []byte) (any, int, error) {
	if w := f.Type.width(); w > 0 {
		if len(data) < w {
			return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrLengthMismatch, w, len(data))
		}
		raw := data[:w]
		switch f.Type {
		case TypeAccountID:
			return sign.AccountID(raw), w, nil
		case TypeH256:
			return slices.Clone(raw), w, nil
		default:
			be := slices.Clone(raw)
			slices.Reverse(be)
			return new(big.Int).SetBytes(be), w, nil
		}
	}

	var (
		length uint32
		n      int
	)
	if s.LengthPrefix == PrefixCompact {
		var err error
		if length, n, err = readCompact(data); err != nil {
			return nil, 0, err
		}
	} else {
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrLengthMismatch)
		}
		length, n = binary.LittleEndian.Uint32(data), 4
	}

	if uint64(len(data)-n) < uint64(length) {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrLengthMismatch, length, len(data)-n)
	}
	end := n + int(length)
	return slices.Clone(data[n:end]), end, nil
}
