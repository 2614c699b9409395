package domain

import "testing"

func TestPendingCorrelationMatches(t *testing.T) {
	pending := PendingCorrelation{RequestID: NewMessageID()}

	tests := []struct {
		name         string
		inResponseTo string
		want         bool
	}{
		{"equal identifiers match", pending.RequestID, true},
		{"different identifier", NewMessageID(), false},
		{"empty identifier", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pending.Matches(tt.inResponseTo); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.inResponseTo, got, tt.want)
			}
		})
	}
}

func TestPendingCorrelationEmptyNeverMatches(t *testing.T) {
	empty := PendingCorrelation{}
	if empty.Matches("") {
		t.Error("empty correlation matches empty InResponseTo")
	}
}

func TestAssertionRestrictedTo(t *testing.T) {
	open := Assertion{}
	if !open.RestrictedTo("https://sp.example.com") {
		t.Error("assertion without restriction rejects the SP")
	}

	restricted := Assertion{Audiences: []string{"https://other.example.com", "https://sp.example.com"}}
	if !restricted.RestrictedTo("https://sp.example.com") {
		t.Error("listed audience rejected")
	}
	if restricted.RestrictedTo("https://third.example.com") {
		t.Error("unlisted audience accepted")
	}
}
