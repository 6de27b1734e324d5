package codec

import (
	"encoding/binary"
	"fmt"
)

// appendCompact appends the SCALE compact encoding of n.
func appendCompact(dst []byte, n uint32) []byte {
	switch {
	case n < 1<<6:
		return append(dst, byte(n<<2))
	case n < 1<<14:
		return binary.LittleEndian.AppendUint16(dst, uint16(n<<2)|0b01)
	case n < 1<<30:
		return binary.LittleEndian.AppendUint32(dst, n<<2|0b10)
	default:
		// Big-integer mode: upper six bits hold the byte count minus four.
		dst = append(dst, 0b11)
		return binary.LittleEndian.AppendUint32(dst, n)
	}
}

// readCompact decodes a compact length from the head of data and returns the
// number of bytes consumed.
func readCompact(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty compact length", ErrLengthMismatch)
	}

	switch data[0] & 0b11 {
	case 0b00:
		return uint32(data[0] >> 2), 1, nil
	case 0b01:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated compact length", ErrLengthMismatch)
		}
		return uint32(binary.LittleEndian.Uint16(data) >> 2), 2, nil
	case 0b10:
		if len(data) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated compact length", ErrLengthMismatch)
		}
		return binary.LittleEndian.Uint32(data) >> 2, 4, nil
	default:
		if data[0]>>2 != 0 {
			return 0, 0, fmt.Errorf("%w: compact length wider than 32 bits", ErrIntegerOverflow)
		}
		if len(data) < 5 {
			return 0, 0, fmt.Errorf("%w: truncated compact length", ErrLengthMismatch)
		}
		return binary.LittleEndian.Uint32(data[1:]), 5, nil
	}
}
