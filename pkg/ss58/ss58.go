// Package ss58 implements the SS58 address format used by Substrate-style
// ledgers: base58(prefix ‖ payload ‖ checksum), where the checksum is the
// first two bytes of blake2b-512("SS58PRE" ‖ prefix ‖ payload).
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// GenericPrefix is the network prefix of generic Substrate addresses ("5...").
const GenericPrefix uint16 = 42

const (
	maxPrefix   = 16383
	checksumLen = 2
)

var (
	ErrInvalidAddress = errors.New("invalid ss58 address")
	ErrBadChecksum    = errors.New("ss58 checksum mismatch")
)

var checksumPreimage = []byte("SS58PRE")

// Encode returns the address of a 32 or 33 byte payload under prefix.
func Encode(payload []byte, prefix uint16) (string, error) {
	if len(payload) != 32 && len(payload) != 33 {
		return "", fmt.Errorf("%w: payload length %d", ErrInvalidAddress, len(payload))
	}
	if prefix > maxPrefix {
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidAddress, prefix)
	}

	data := append(encodePrefix(prefix), payload...)
	data = append(data, checksum(data)...)
	return base58.Encode(data), nil
}

// MustEncode is Encode for payloads known to be valid.
func MustEncode(payload []byte, prefix uint16) string {
	addr, err := Encode(payload, prefix)
	if err != nil {
		panic(err)
	}
	return addr
}

// Decode returns the payload and network prefix of addr.
func Decode(addr string) ([]byte, uint16, error) {
	data := base58.Decode(addr)
	if len(data) < 1+32+checksumLen {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	prefix, prefixLen, err := decodePrefix(data)
	if err != nil {
		return nil, 0, err
	}

	body, sum := data[:len(data)-checksumLen], data[len(data)-checksumLen:]
	payload := body[prefixLen:]
	if len(payload) != 32 && len(payload) != 33 {
		return nil, 0, fmt.Errorf("%w: payload length %d", ErrInvalidAddress, len(payload))
	}
	if !bytes.Equal(sum, checksum(body)) {
		return nil, 0, ErrBadChecksum
	}

	return payload, prefix, nil
}

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0x00fc)>>2) | 0x40
	second := byte(prefix>>8) | byte((prefix&0x0003)<<6)
	return []byte{first, second}
}

func decodePrefix(data []byte) (uint16, int, error) {
	switch b0 := data[0]; {
	case b0 < 64:
		return uint16(b0), 1, nil
	case b0 < 128:
		b1 := data[1]
		lower := (b0 << 2) | (b1 >> 6)
		upper := b1 & 0x3f
		return uint16(lower) | uint16(upper)<<8, 2, nil
	default:
		return 0, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, b0)
	}
}

func checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPreimage)
	h.Write(body)
	return h.Sum(nil)[:checksumLen]
}
