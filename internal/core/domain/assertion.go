package domain

import (
	"time"
)

// Assertion holds the validated identity statement extracted from a SAML
// response. It is produced by the validator only after every pipeline step
// has passed and is immutable from the caller's point of view.
type Assertion struct {
	// ID is the assertion's own identifier.
	ID string

	// Issuer is the IdP entity ID that issued the assertion.
	Issuer string

	// Subject is the NameID value (user identifier).
	Subject string

	// NameIDFormat is the format URI of the NameID (needed for LogoutRequest).
	NameIDFormat string

	// SessionIndex is the IdP session index (needed for LogoutRequest).
	SessionIndex string

	// NotBefore and NotOnOrAfter bound the assertion's validity window.
	NotBefore    time.Time
	NotOnOrAfter time.Time

	// Audiences lists the audience restriction values, if any.
	Audiences []string

	// Attributes maps attribute names to their values in document order.
	Attributes map[string][]string

	// Signed records whether the assertion carried a verified signature.
	Signed bool
}

// Attribute returns the first value of the named attribute, or "" when the
// attribute is absent.
func (a *Assertion) Attribute(name string) string {
	if vals := a.Attributes[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// RestrictedTo reports whether the assertion's audience restriction admits
// the given entity ID. An assertion without any restriction admits everyone.
func (a *Assertion) RestrictedTo(entityID string) bool {
	if len(a.Audiences) == 0 {
		return true
	}
	for _, aud := range a.Audiences {
		if aud == entityID {
			return true
		}
	}
	return false
}
