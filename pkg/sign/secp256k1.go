package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

var (
	_ Signer    = (*Secp256k1Signer)(nil)
	_ PublicKey = Secp256k1PublicKey{}
)

// MessageHash is the digest secp256k1 signatures are computed over.
func MessageHash(message []byte) []byte {
	sum := blake2b.Sum256(message)
	return sum[:]
}

type Secp256k1PublicKey struct{ *ecdsa.PublicKey }

// NewSecp256k1PublicKey accepts a compressed or uncompressed key.
func NewSecp256k1PublicKey(b []byte) (Secp256k1PublicKey, error) {
	var (
		pub *ecdsa.PublicKey
		err error
	)
	switch len(b) {
	case 33:
		pub, err = ethcrypto.DecompressPubkey(b)
	case 65:
		pub, err = ethcrypto.UnmarshalPubkey(b)
	default:
		return Secp256k1PublicKey{}, fmt.Errorf("%w: secp256k1 key length %d", ErrKeyFormat, len(b))
	}
	if err != nil {
		return Secp256k1PublicKey{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return Secp256k1PublicKey{pub}, nil
}

func (p Secp256k1PublicKey) Scheme() Scheme { return SchemeSecp256k1 }

// Bytes returns the 33-byte compressed form.
func (p Secp256k1PublicKey) Bytes() []byte { return ethcrypto.CompressPubkey(p.PublicKey) }

func (p Secp256k1PublicKey) AccountID() AccountID {
	return AccountID(blake2b.Sum256(p.Bytes()))
}

func (p Secp256k1PublicKey) Verify(message []byte, sig Signature) (bool, error) {
	rs, err := splitSecp256k1Signature(sig)
	if err != nil {
		return false, err
	}
	return ethcrypto.VerifySignature(p.Bytes(), MessageHash(message), rs[:64]), nil
}

// RecoverPublicKey returns the key that produced sig over message.
func RecoverPublicKey(message []byte, sig Signature) (Secp256k1PublicKey, error) {
	rsv, err := splitSecp256k1Signature(sig)
	if err != nil {
		return Secp256k1PublicKey{}, err
	}
	pub, err := ethcrypto.SigToPub(MessageHash(message), rsv)
	if err != nil {
		return Secp256k1PublicKey{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return Secp256k1PublicKey{pub}, nil
}

// splitSecp256k1Signature validates the layout and returns a copy with V in {0,1}.
func splitSecp256k1Signature(sig Signature) ([]byte, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: secp256k1 signature length %d", ErrKeyFormat, len(sig))
	}
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	if rsv[64] > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrKeyFormat, sig[64])
	}
	return rsv, nil
}

type Secp256k1Signer struct {
	key *ecdsa.PrivateKey
	pub Secp256k1PublicKey
}

// NewSecp256k1Signer parses a hex private key, with or without 0x.
func NewSecp256k1Signer(privateKeyHex string) (*Secp256k1Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse secp256k1 private key: %w", err)
	}
	return NewSecp256k1SignerFromKey(key), nil
}

func NewSecp256k1SignerFromKey(key *ecdsa.PrivateKey) *Secp256k1Signer {
	return &Secp256k1Signer{key: key, pub: Secp256k1PublicKey{&key.PublicKey}}
}

func (s *Secp256k1Signer) PublicKey() PublicKey { return s.pub }

// Sign returns R‖S‖V over MessageHash(message) with V in {0,1}.
func (s *Secp256k1Signer) Sign(message []byte) (Signature, error) {
	return ethcrypto.Sign(MessageHash(message), s.key)
}
