package domain

import (
	"encoding/base64"
	"testing"
)

func TestArtifactRoundTrip(t *testing.T) {
	artifact, err := NewArtifact("https://sp.example.com/saml", 3)
	if err != nil {
		t.Fatalf("NewArtifact: %v", err)
	}

	if artifact.TypeCode != ArtifactTypeCode {
		t.Errorf("TypeCode = 0x%04x, want 0x%04x", artifact.TypeCode, ArtifactTypeCode)
	}

	decoded, err := DecodeArtifact(artifact.Encode())
	if err != nil {
		t.Fatalf("DecodeArtifact: %v", err)
	}

	if *decoded != *artifact {
		t.Errorf("decoded artifact %+v does not match original %+v", decoded, artifact)
	}
}

func TestArtifactSourceID(t *testing.T) {
	entityID := "https://sp.example.com/saml"
	artifact, err := NewArtifact(entityID, 0)
	if err != nil {
		t.Fatalf("NewArtifact: %v", err)
	}

	if artifact.SourceID != SourceIDFor(entityID) {
		t.Error("artifact source ID is not the SHA-1 of the entity ID")
	}
}

func TestArtifactHandlesAreUnique(t *testing.T) {
	a, err := NewArtifact("https://sp.example.com", 0)
	if err != nil {
		t.Fatalf("NewArtifact: %v", err)
	}
	b, err := NewArtifact("https://sp.example.com", 0)
	if err != nil {
		t.Fatalf("NewArtifact: %v", err)
	}

	if a.MessageHandle == b.MessageHandle {
		t.Error("two artifacts share a message handle")
	}
}

func TestDecodeArtifactRejectsWrongLength(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"too short", base64.StdEncoding.EncodeToString(make([]byte, 43))},
		{"too long", base64.StdEncoding.EncodeToString(make([]byte, 45))},
		{"empty", base64.StdEncoding.EncodeToString(nil)},
		{"not base64", "!!!not-base64!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeArtifact(tt.encoded)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			appErr, ok := err.(*AppError)
			if !ok {
				t.Fatalf("expected *AppError, got %T", err)
			}
			if appErr.Code != ErrCodeFormatInvalid {
				t.Errorf("code = %s, want %s", appErr.Code, ErrCodeFormatInvalid)
			}
		})
	}
}
