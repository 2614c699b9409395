package saml2core

import (
	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// Re-export configuration and data types from the domain package.
type Config = domain.Config
type ServiceProviderConfig = domain.ServiceProviderConfig
type IdentityProviderConfig = domain.IdentityProviderConfig
type ResolvedConfig = domain.ResolvedConfig
type Assertion = domain.Assertion
type Artifact = domain.Artifact
type PendingCorrelation = domain.PendingCorrelation

// Re-export the port interfaces hosts implement or consume.
type CertificateProvider = ports.CertificateProvider
type SigningCertificatePair = ports.SigningCertificatePair
type CorrelationStore = ports.CorrelationStore
type MetricsRecorder = ports.MetricsRecorder

// ErrNoCorrelation is returned by correlation stores when no round trip is
// outstanding.
var ErrNoCorrelation = ports.ErrNoCorrelation

// Re-export protocol constants hosts commonly need.
const (
	StatusSuccess   = domain.StatusSuccess
	StatusNoPassive = domain.StatusNoPassive
	SAMLVersion     = domain.SAMLVersion
)

// NewMessageID generates a fresh protocol message identifier.
var NewMessageID = domain.NewMessageID

// DecodeArtifact parses a Base64-encoded SAML artifact.
var DecodeArtifact = domain.DecodeArtifact
