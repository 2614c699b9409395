package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// MinMessageIDLength is the minimum accepted length for a protocol message
// identifier. Identifiers carry at least 128 bits of entropy; anything
// shorter is guessable and enables response forgery.
const MinMessageIDLength = 16

// MessageType discriminates the protocol messages this SP constructs.
type MessageType string

const (
	MessageTypeAuthnRequest   MessageType = "AuthnRequest"
	MessageTypeLogoutRequest  MessageType = "LogoutRequest"
	MessageTypeLogoutResponse MessageType = "LogoutResponse"
)

// ProtocolMessage carries the common fields of an outbound SAML protocol
// message. It is serialized once by a binding, then discarded.
type ProtocolMessage struct {
	Type         MessageType
	ID           string
	IssueInstant time.Time
	Issuer       string
	Destination  string

	// InResponseTo correlates a LogoutResponse with the request it answers.
	InResponseTo string

	// StatusCode is set on LogoutResponse only.
	StatusCode string
}

// NewMessageID generates a fresh protocol message identifier: an underscore
// followed by 160 random bits in hex. The leading underscore keeps the value
// a valid XML NCName, which the ID attribute type requires.
func NewMessageID() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; an error here
		// means the process cannot do anything security-sensitive at all.
		panic(fmt.Sprintf("saml2core: read random: %v", err))
	}
	return "_" + hex.EncodeToString(buf)
}

// ValidateMessageID enforces the identifier entropy invariant.
func ValidateMessageID(id string) error {
	if len(id) < MinMessageIDLength {
		return ConfigError(fmt.Sprintf("message id %q is shorter than %d characters", id, MinMessageIDLength))
	}
	return nil
}

// Validate checks the invariants every outbound message must satisfy before
// a binding serializes it.
func (m *ProtocolMessage) Validate() error {
	if err := ValidateMessageID(m.ID); err != nil {
		return err
	}
	if m.Issuer == "" {
		return ConfigError("message issuer entity ID is empty")
	}
	if m.Destination == "" {
		return ConfigError("message destination URL is empty")
	}
	if m.IssueInstant.IsZero() {
		return ConfigError("message issue instant is unset")
	}
	if m.Type == MessageTypeLogoutResponse && m.InResponseTo == "" {
		return ConfigError("logout response requires InResponseTo")
	}
	return nil
}
