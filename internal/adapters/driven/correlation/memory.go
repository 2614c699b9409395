package correlation

import (
	"sync"
	"time"

	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// MemoryStore is a single-slot in-memory CorrelationStore. Each logical
// user session owns its own instance; the slot holds at most one pending
// round trip, matching the port's scope.
type MemoryStore struct {
	mu      sync.Mutex
	pending *domain.PendingCorrelation
	saved   time.Time
	ttl     time.Duration
}

// NewMemoryStore creates an in-memory store. A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl}
}

// Save stores the pending round trip, replacing any previous one.
func (s *MemoryStore) Save(pending *domain.PendingCorrelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *pending
	s.pending = &copied
	s.saved = time.Now()
	return nil
}

// Load returns the pending round trip, or ErrNoCorrelation when none is
// outstanding or the entry expired.
func (s *MemoryStore) Load() (*domain.PendingCorrelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil, ports.ErrNoCorrelation
	}
	if s.ttl > 0 && time.Since(s.saved) > s.ttl {
		s.pending = nil
		return nil, ports.ErrNoCorrelation
	}
	copied := *s.pending
	return &copied, nil
}

// Remove discards the pending round trip.
func (s *MemoryStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

// Refresh extends the entry's lifetime.
func (s *MemoryStore) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ports.ErrNoCorrelation
	}
	if s.ttl > 0 && time.Since(s.saved) > s.ttl {
		s.pending = nil
		return ports.ErrNoCorrelation
	}
	s.saved = time.Now()
	return nil
}

var _ ports.CorrelationStore = (*MemoryStore)(nil)
