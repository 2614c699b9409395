package saml2core

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryIDCache remembers consumed assertion and message identifiers until
// their validity window closes. It is the second line of replay defense
// behind request correlation: even when an attacker replays a response into
// a session that still has the matching correlation, the assertion ID has
// already been consumed.
type MemoryIDCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   clockwork.Clock
}

// NewMemoryIDCache creates a new in-memory consumed-ID cache.
func NewMemoryIDCache(clock clockwork.Clock) *MemoryIDCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryIDCache{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
}

// MarkConsumed records an identifier as consumed until the given expiry.
// Returns false when the identifier was already consumed and has not yet
// expired.
func (c *MemoryIDCache) MarkConsumed(id string, until time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.purgeLocked(now)

	if expiry, exists := c.entries[id]; exists && now.Before(expiry) {
		return false
	}
	c.entries[id] = until
	return true
}

// purgeLocked drops expired entries. Caller holds the lock.
func (c *MemoryIDCache) purgeLocked(now time.Time) {
	for id, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, id)
		}
	}
}
