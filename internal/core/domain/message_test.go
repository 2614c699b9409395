package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()

	if !strings.HasPrefix(id, "_") {
		t.Errorf("message ID %q does not start with underscore", id)
	}
	if len(id) != 41 {
		t.Errorf("message ID length = %d, want 41", len(id))
	}
	if id == NewMessageID() {
		t.Error("two message IDs are identical")
	}
}

func TestValidateMessageID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"generated", NewMessageID(), false},
		{"exactly minimum", strings.Repeat("a", MinMessageIDLength), false},
		{"one short", strings.Repeat("a", MinMessageIDLength-1), true},
		{"empty", "", true},
		{"guessable", "id-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestProtocolMessageValidate(t *testing.T) {
	valid := ProtocolMessage{
		Type:         MessageTypeAuthnRequest,
		ID:           NewMessageID(),
		IssueInstant: time.Now(),
		Issuer:       "https://sp.example.com",
		Destination:  "https://idp.example.com/sso",
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	noIssuer := valid
	noIssuer.Issuer = ""
	if err := noIssuer.Validate(); err == nil {
		t.Error("message without issuer accepted")
	}

	shortID := valid
	shortID.ID = "abc"
	if err := shortID.Validate(); err == nil {
		t.Error("message with short ID accepted")
	}

	logoutResponse := valid
	logoutResponse.Type = MessageTypeLogoutResponse
	if err := logoutResponse.Validate(); err == nil {
		t.Error("logout response without InResponseTo accepted")
	}
	logoutResponse.InResponseTo = NewMessageID()
	if err := logoutResponse.Validate(); err != nil {
		t.Errorf("logout response with InResponseTo rejected: %v", err)
	}
}
