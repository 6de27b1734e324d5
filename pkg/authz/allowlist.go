package authz

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erc7824/ledgergate/pkg/sign"
)

// AllowList gates privileged commands. Entries are keyed by SS58 address or
// by 0x hex of a public key or account id, and all forms of one key match
// each other.
type AllowList struct {
	accounts map[sign.AccountID]struct{}
	literal  map[string]struct{}
}

// LoadAllowList parses a YAML or JSON mapping. An entry is a member when its
// value is truthy: false, 0, "" and null are not.
func LoadAllowList(data []byte) (*AllowList, error) {
	var entries map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse allow-list: %w", err)
	}

	a := &AllowList{
		accounts: make(map[sign.AccountID]struct{}),
		literal:  make(map[string]struct{}),
	}
	for key, v := range entries {
		if !truthy(v) {
			continue
		}
		if id, err := sign.ParseAccountID(key); err == nil {
			a.accounts[id] = struct{}{}
			continue
		}
		a.literal[key] = struct{}{}
	}
	return a, nil
}

func LoadAllowListFile(path string) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	return LoadAllowList(data)
}

// NewAllowList builds a list from account ids.
func NewAllowList(ids ...sign.AccountID) *AllowList {
	a := &AllowList{
		accounts: make(map[sign.AccountID]struct{}, len(ids)),
		literal:  make(map[string]struct{}),
	}
	for _, id := range ids {
		a.accounts[id] = struct{}{}
	}
	return a
}

// Allows reports whether key, in any accepted form, is a member.
func (a *AllowList) Allows(key string) bool {
	if a == nil {
		return false
	}
	if _, ok := a.literal[key]; ok {
		return true
	}
	id, err := sign.ParseAccountID(key)
	if err != nil {
		return false
	}
	_, ok := a.accounts[id]
	return ok
}

func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.accounts) + len(a.literal)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return true
	}
}
