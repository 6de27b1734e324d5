package main

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erc7824/ledgergate/pkg/authz"
)

const (
	cleanupTargetFraction = 10
	minCleanupInterval    = 10
	maxCleanupInterval    = 1000
)

// MessageCache remembers recently authorized commands so that a replayed
// command is rejected within the expiry window.
//
// Expired entries are dropped lazily: every cleanupEvery additions the whole
// map is swept, and the interval grows with the cache size. Until then an
// expired entry is treated as absent.
type MessageCache struct {
	entries        map[string]int64 // hash -> expiry (unix ms)
	mu             sync.RWMutex
	ttl            time.Duration
	cleanupCounter int
	cleanupEvery   int
}

func NewMessageCache(ttl time.Duration) *MessageCache {
	return &MessageCache{
		entries:      make(map[string]int64),
		ttl:          ttl,
		cleanupEvery: minCleanupInterval,
	}
}

// Add records hash with an expiry of TTL from now.
func (mc *MessageCache) Add(hash string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.addLocked(hash, time.Now())
}

// AddIfAbsent records hash and reports true, unless a live entry for hash
// already exists, in which case it reports false and leaves the entry alone.
func (mc *MessageCache) AddIfAbsent(hash string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if expiry, ok := mc.entries[hash]; ok && now.UnixMilli() <= expiry {
		return false
	}
	mc.addLocked(hash, now)
	return true
}

// Exists reports whether hash is cached and not expired.
func (mc *MessageCache) Exists(hash string) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	expiry, ok := mc.entries[hash]
	if !ok {
		return false
	}
	return time.Now().UnixMilli() <= expiry
}

// Remove lets a request with hash be processed again immediately.
func (mc *MessageCache) Remove(hash string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, hash)
}

func (mc *MessageCache) addLocked(hash string, now time.Time) {
	mc.entries[hash] = now.Add(mc.ttl).UnixMilli()

	mc.cleanupCounter++
	if mc.cleanupCounter >= mc.cleanupEvery {
		mc.cleanupExpiredLocked()
		mc.recalculateCleanupInterval()
		mc.cleanupCounter = 0
	}
}

// cleanupExpiredLocked must be called with mc.mu held.
func (mc *MessageCache) cleanupExpiredLocked() {
	now := time.Now().UnixMilli()
	for hash, expiry := range mc.entries {
		if now > expiry {
			delete(mc.entries, hash)
		}
	}
}

func (mc *MessageCache) recalculateCleanupInterval() {
	interval := len(mc.entries) / cleanupTargetFraction
	switch {
	case interval < minCleanupInterval:
		mc.cleanupEvery = minCleanupInterval
	case interval > maxCleanupInterval:
		mc.cleanupEvery = maxCleanupInterval
	default:
		mc.cleanupEvery = interval
	}
}

// ReplayKey identifies an authorized command by its method, the message its
// parties signed and their accounts. The request id and timestamp around the
// command do not change the key.
func ReplayKey(cmd *authz.AuthorizedCommand) string {
	parts := make([][]byte, 0, 2+len(cmd.Signatures))
	parts = append(parts, crypto.Keccak256([]byte(cmd.Command.Method)), crypto.Keccak256(cmd.Message))
	for _, sig := range cmd.Signatures {
		parts = append(parts, sig.Account[:])
	}
	return hex.EncodeToString(crypto.Keccak256(parts...))
}
