package domain

import "time"

// PendingCorrelation records one outstanding protocol round trip: the
// identifier of the AuthnRequest or LogoutRequest this process sent, plus
// the target to send the browser back to afterwards. It lives in the
// external correlation store between the outbound redirect and the inbound
// response and is removed once consumed.
type PendingCorrelation struct {
	// RequestID is the identifier of the outstanding request.
	RequestID string `json:"request_id"`

	// ReturnURL is where the host redirects the browser after the round
	// trip completes. Opaque to this module.
	ReturnURL string `json:"return_url,omitempty"`

	// IssuedAt is when the request was issued.
	IssuedAt time.Time `json:"issued_at"`
}

// Matches reports whether an inbound InResponseTo identifier correlates
// with this pending round trip. Equality is the valid case; a differing or
// empty identifier means the response does not answer a request this
// process issued.
func (p *PendingCorrelation) Matches(inResponseTo string) bool {
	return p.RequestID != "" && inResponseTo != "" && p.RequestID == inResponseTo
}
