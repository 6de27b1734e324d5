// Package keystore holds the accounts ledgergate signs submissions with.
//
// Accounts are loaded locked from account files and stay unusable until
// unlocked with their passphrase. Signing with a locked or unknown account
// fails immediately; nothing is queued.
package keystore

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/sign"
)

var (
	ErrKeyLocked   = errcode.New(errcode.KeyLocked, "account is locked")
	ErrKeyNotFound = errcode.New(errcode.KeyNotFound, "account not found")
	ErrBadAccount  = errcode.New(errcode.MalformedRequest, "invalid account file")
)

// AccountFile is the serialized form of an account. Encoded holds a geth V3
// keystore document.
type AccountFile struct {
	Address string          `json:"address"`
	Encoded json.RawMessage `json:"encoded"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

// Account describes a loaded account without exposing key material.
type Account struct {
	ID     sign.AccountID `json:"address"`
	Locked bool           `json:"locked"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type entry struct {
	file AccountFile
	key  *ecdsa.PrivateKey
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	accounts map[sign.AccountID]*entry
}

func New() *Store {
	return &Store{accounts: make(map[sign.AccountID]*entry)}
}

// Load registers an account file. The account starts locked. Loading an
// account that is already present replaces its file and locks it.
func (s *Store) Load(data []byte) (sign.AccountID, error) {
	var file AccountFile
	if err := json.Unmarshal(data, &file); err != nil {
		return sign.AccountID{}, fmt.Errorf("%w: %v", ErrBadAccount, err)
	}

	id, err := sign.ParseAccountID(file.Address)
	if err != nil {
		return sign.AccountID{}, fmt.Errorf("%w: address: %v", ErrBadAccount, err)
	}
	var shape struct {
		Crypto json.RawMessage `json:"crypto"`
	}
	if len(file.Encoded) == 0 || json.Unmarshal(file.Encoded, &shape) != nil || len(shape.Crypto) == 0 {
		return sign.AccountID{}, fmt.Errorf("%w: encoded key is not a keystore document", ErrBadAccount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.accounts[id]; ok {
		wipe(old)
	}
	s.accounts[id] = &entry{file: file}
	return id, nil
}

// LoadDir loads every *.json file in dir.
func (s *Store) LoadDir(dir string) ([]sign.AccountID, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	ids := make([]sign.AccountID, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read account file %s: %w", path, err)
		}
		id, err := s.Load(data)
		if err != nil {
			return nil, fmt.Errorf("account file %s: %w", path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Unlock decrypts the key of address. The decrypted key must belong to the
// address the file claims.
func (s *Store) Unlock(address, passphrase string) error {
	id, err := sign.ParseAccountID(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	if e.key != nil {
		return nil
	}

	key, err := keystore.DecryptKey(e.file.Encoded, passphrase)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrKeyLocked, id, err)
	}
	pub := sign.Secp256k1PublicKey{PublicKey: &key.PrivateKey.PublicKey}
	if pub.AccountID() != id {
		key.PrivateKey.D.SetUint64(0)
		return fmt.Errorf("%w: key belongs to %s, not %s", ErrBadAccount, pub.AccountID(), id)
	}

	e.key = key.PrivateKey
	return nil
}

// Lock forgets the decrypted key of address.
func (s *Store) Lock(address string) error {
	id, err := sign.ParseAccountID(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	wipe(e)
	return nil
}

func (s *Store) IsLocked(address string) (bool, error) {
	id, err := sign.ParseAccountID(address)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return e.key == nil, nil
}

// Sign signs message with the account's secp256k1 key.
func (s *Store) Sign(address string, message []byte) (sign.Signature, error) {
	id, err := sign.ParseAccountID(address)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	if e.key == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyLocked, id)
	}
	return sign.NewSecp256k1SignerFromKey(e.key).Sign(message)
}

// Accounts lists loaded accounts ordered by address.
func (s *Store) Accounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for id, e := range s.accounts {
		out = append(out, Account{ID: id, Locked: e.key == nil, Meta: e.file.Meta})
	}
	slices.SortFunc(out, func(a, b Account) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// Unlocked counts accounts that can sign.
func (s *Store) Unlocked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.accounts {
		if e.key != nil {
			n++
		}
	}
	return n
}

func wipe(e *entry) {
	if e.key != nil {
		e.key.D.SetUint64(0)
		e.key = nil
	}
}

// NewAccountFile encrypts key with passphrase. Use keystore.StandardScryptN
// and keystore.StandardScryptP outside of tests.
func NewAccountFile(key *ecdsa.PrivateKey, passphrase string, scryptN, scryptP int, meta map[string]any) (AccountFile, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return AccountFile{}, fmt.Errorf("failed to generate key id: %w", err)
	}

	encoded, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, passphrase, scryptN, scryptP)
	if err != nil {
		return AccountFile{}, fmt.Errorf("failed to encrypt key: %w", err)
	}

	pub := sign.Secp256k1PublicKey{PublicKey: &key.PublicKey}
	return AccountFile{
		Address: pub.AccountID().String(),
		Encoded: encoded,
		Meta:    meta,
	}, nil
}
