package ports

import (
	"errors"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// CorrelationStore is the port interface for the external store that holds
// one pending protocol round trip per logical user session. The blob is
// scoped to a single round trip: saved on initiate, loaded and removed when
// the response arrives.
type CorrelationStore interface {
	// Save persists the pending round trip, replacing any previous one.
	Save(pending *domain.PendingCorrelation) error

	// Load retrieves the pending round trip. Returns ErrNoCorrelation
	// when none is outstanding.
	Load() (*domain.PendingCorrelation, error)

	// Remove discards the pending round trip. Removing when nothing is
	// stored is not an error.
	Remove() error

	// Refresh extends the lifetime of the pending round trip in stores
	// that expire entries. No-op for stores without expiry.
	Refresh() error
}

// ErrNoCorrelation is returned when no round trip is outstanding.
var ErrNoCorrelation = errors.New("no pending correlation")
