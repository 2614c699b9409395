package ports

import (
	"crypto/x509"
)

// SigningCertificatePair holds the certificate material one deployment
// needs: the IdP certificates for verification and the SP key pair for
// signing and decryption. Loaded once at startup and shared read-only.
type SigningCertificatePair struct {
	// IdentityProviderCerts are the trusted IdP signing certificates.
	// More than one entry supports certificate rollover.
	IdentityProviderCerts []*x509.Certificate

	// ServiceProviderCert is the SP certificate published to the IdP.
	ServiceProviderCert *x509.Certificate

	// ServiceProviderKey is the SP private key (RSA or DSA) matching
	// ServiceProviderCert. Used for request signing and assertion
	// decryption.
	ServiceProviderKey interface{}
}

// CertificateProvider is the port interface for certificate lookup.
// Implementations are adapters (PEM files, OS certificate stores); the core
// never depends on where the material comes from.
type CertificateProvider interface {
	// GetCertificates returns the IdP verification certificates and the
	// SP signing key pair for this deployment.
	GetCertificates() (*SigningCertificatePair, error)
}
