package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

var (
	_ Signer    = (*Ed25519Signer)(nil)
	_ PublicKey = Ed25519PublicKey{}
)

type Ed25519PublicKey struct{ key ed25519.PublicKey }

func NewEd25519PublicKey(b []byte) (Ed25519PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return Ed25519PublicKey{}, fmt.Errorf("%w: ed25519 key length %d", ErrKeyFormat, len(b))
	}
	return Ed25519PublicKey{key: ed25519.PublicKey(append([]byte(nil), b...))}, nil
}

func (p Ed25519PublicKey) Scheme() Scheme       { return SchemeEd25519 }
func (p Ed25519PublicKey) Bytes() []byte        { return append([]byte(nil), p.key...) }
func (p Ed25519PublicKey) AccountID() AccountID { return AccountID(p.key) }

func (p Ed25519PublicKey) Verify(message []byte, sig Signature) (bool, error) {
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: ed25519 signature length %d", ErrKeyFormat, len(sig))
	}
	return ed25519.Verify(p.key, message, sig), nil
}

type Ed25519Signer struct {
	key ed25519.PrivateKey
	pub Ed25519PublicKey
}

// NewEd25519Signer derives a signer from a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{key: key, pub: Ed25519PublicKey{key: key.Public().(ed25519.PublicKey)}}, nil
}

func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{key: key, pub: Ed25519PublicKey{key: key.Public().(ed25519.PublicKey)}}, nil
}

func (s *Ed25519Signer) PublicKey() PublicKey { return s.pub }

func (s *Ed25519Signer) Sign(message []byte) (Signature, error) {
	return ed25519.Sign(s.key, message), nil
}
