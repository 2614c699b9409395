package domain

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Artifact byte layout per SAML 2.0 Bindings section 3.6.4: a 2-byte type
// code, a 2-byte endpoint index, a 20-byte source ID and a 20-byte message
// handle, big-endian, exactly 44 bytes before Base64.
const (
	ArtifactTypeCode = 0x0004

	artifactHashLen = 20
	artifactLen     = 44
)

// Artifact is a small opaque reference exchanged in place of a full SAML
// message and later resolved out-of-band. Single use.
type Artifact struct {
	TypeCode      uint16
	EndpointIndex uint16
	SourceID      [artifactHashLen]byte
	MessageHandle [artifactHashLen]byte
}

// NewArtifact creates a type-4 artifact for the given SP entity ID with a
// fresh random message handle.
func NewArtifact(spEntityID string, endpointIndex uint16) (*Artifact, error) {
	a := &Artifact{
		TypeCode:      ArtifactTypeCode,
		EndpointIndex: endpointIndex,
		SourceID:      sha1.Sum([]byte(spEntityID)),
	}
	if _, err := rand.Read(a.MessageHandle[:]); err != nil {
		return nil, fmt.Errorf("generate message handle: %w", err)
	}
	return a, nil
}

// Encode packs the artifact into its 44-byte form and Base64-encodes it.
func (a *Artifact) Encode() string {
	buf := make([]byte, artifactLen)
	binary.BigEndian.PutUint16(buf[0:2], a.TypeCode)
	binary.BigEndian.PutUint16(buf[2:4], a.EndpointIndex)
	copy(buf[4:24], a.SourceID[:])
	copy(buf[24:44], a.MessageHandle[:])
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeArtifact parses a Base64-encoded artifact. Any decoded length other
// than 44 bytes is a format error.
func DecodeArtifact(encoded string) (*Artifact, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, FormatError("artifact is not valid base64", err)
	}
	if len(raw) != artifactLen {
		return nil, FormatError(fmt.Sprintf("artifact must decode to %d bytes, got %d", artifactLen, len(raw)), nil)
	}

	a := &Artifact{
		TypeCode:      binary.BigEndian.Uint16(raw[0:2]),
		EndpointIndex: binary.BigEndian.Uint16(raw[2:4]),
	}
	copy(a.SourceID[:], raw[4:24])
	copy(a.MessageHandle[:], raw[24:44])
	return a, nil
}

// SourceIDFor returns the 20-byte source ID an entity advertises in
// artifacts: the SHA-1 hash of its entity ID.
func SourceIDFor(entityID string) [artifactHashLen]byte {
	return sha1.Sum([]byte(entityID))
}
