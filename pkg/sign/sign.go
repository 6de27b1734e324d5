package sign

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/ss58"
)

var ErrKeyFormat = errcode.New(errcode.KeyFormatError, "malformed key or signature")

// Signer produces signatures. Private key material never leaves it.
type Signer interface {
	PublicKey() PublicKey
	// Sign signs message according to the signer's scheme.
	Sign(message []byte) (Signature, error)
}

// PublicKey is a scheme-tagged verification key.
type PublicKey interface {
	Scheme() Scheme
	Bytes() []byte
	AccountID() AccountID
	// Verify reports whether sig is a valid signature of message. The error
	// is non-nil only for a malformed signature.
	Verify(message []byte, sig Signature) (bool, error)
}

// Scheme is a signature algorithm.
type Scheme uint8

const (
	SchemeEd25519 Scheme = iota
	SchemeSecp256k1
	SchemeUnknown Scheme = 255
)

func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// Signature is a raw signature. It travels as a 0x-prefixed hex string.
type Signature []byte

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}

// ParsePublicKey picks the scheme from the key length.
func ParsePublicKey(b []byte) (PublicKey, error) {
	switch len(b) {
	case 32:
		return NewEd25519PublicKey(b)
	case 33, 65:
		return NewSecp256k1PublicKey(b)
	default:
		return nil, fmt.Errorf("%w: public key length %d", ErrKeyFormat, len(b))
	}
}

// DecodePublicKey parses a 0x-prefixed hex key or an SS58 address. An SS58
// address only identifies a key for ed25519 accounts, where the account id
// is the key.
func DecodePublicKey(s string) (PublicKey, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return ParsePublicKey(b)
	}

	payload, _, err := ss58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return ParsePublicKey(payload)
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(s string) (Signature, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrKeyFormat, err)
	}
	return b, nil
}

// Verify checks sig against message with the key encoded in pub.
func Verify(pub []byte, message []byte, sig Signature) (bool, error) {
	key, err := ParsePublicKey(pub)
	if err != nil {
		return false, err
	}
	return key.Verify(message, sig)
}

// MessageFromString returns the UTF-8 bytes of s. A 0x-prefixed hex string
// is decoded instead, so a client may sign either form.
func MessageFromString(s string) []byte {
	if strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return b
		}
	}
	return []byte(s)
}
