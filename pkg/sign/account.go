package sign

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc7824/ledgergate/pkg/ss58"
)

// AccountID is the 32-byte ledger identity of a key.
type AccountID [32]byte

// AccountIDFromBytes accepts a 32-byte account id or a secp256k1 public key.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	switch len(b) {
	case 32:
		return AccountID(b), nil
	case 33, 65:
		key, err := NewSecp256k1PublicKey(b)
		if err != nil {
			return AccountID{}, err
		}
		return key.AccountID(), nil
	default:
		return AccountID{}, fmt.Errorf("%w: account length %d", ErrKeyFormat, len(b))
	}
}

// ParseAccountID accepts an SS58 address, 0x hex of an account id, or 0x hex
// of a secp256k1 public key.
func ParseAccountID(s string) (AccountID, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return AccountID{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return AccountIDFromBytes(b)
	}

	payload, _, err := ss58.Decode(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return AccountIDFromBytes(payload)
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) Hex() string {
	return hexutil.Encode(a[:])
}

// String returns the generic SS58 address.
func (a AccountID) String() string {
	return ss58.MustEncode(a[:], ss58.GenericPrefix)
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	id, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}
