package saml2core

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/philiph/saml2-core/internal/core/domain"
)

func TestMemoryIDCacheSingleUse(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	cache := NewMemoryIDCache(clock)
	id := domain.NewMessageID()

	if !cache.MarkConsumed(id, testNow.Add(time.Minute)) {
		t.Fatal("first consumption rejected")
	}
	if cache.MarkConsumed(id, testNow.Add(time.Minute)) {
		t.Error("second consumption accepted")
	}
}

func TestMemoryIDCacheExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	cache := NewMemoryIDCache(clock)
	id := domain.NewMessageID()

	if !cache.MarkConsumed(id, testNow.Add(time.Minute)) {
		t.Fatal("first consumption rejected")
	}

	// Once the entry's validity window closes, the identifier may be seen
	// again; the time-window check rejects such messages anyway.
	clock.Advance(time.Minute)
	if !cache.MarkConsumed(id, clock.Now().Add(time.Minute)) {
		t.Error("consumption after expiry rejected")
	}
}

func TestMemoryIDCacheIndependentIDs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	cache := NewMemoryIDCache(clock)

	if !cache.MarkConsumed(domain.NewMessageID(), testNow.Add(time.Minute)) {
		t.Fatal("first ID rejected")
	}
	if !cache.MarkConsumed(domain.NewMessageID(), testNow.Add(time.Minute)) {
		t.Error("unrelated ID rejected")
	}
}

func TestMemoryIDCachePurgesExpiredEntries(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	cache := NewMemoryIDCache(clock)

	for i := 0; i < 100; i++ {
		cache.MarkConsumed(domain.NewMessageID(), testNow.Add(time.Second))
	}
	clock.Advance(time.Minute)
	cache.MarkConsumed(domain.NewMessageID(), clock.Now().Add(time.Minute))

	cache.mu.Lock()
	size := len(cache.entries)
	cache.mu.Unlock()
	if size != 1 {
		t.Errorf("cache holds %d entries after purge, want 1", size)
	}
}
