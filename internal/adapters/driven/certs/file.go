// Package certs provides CertificateProvider adapters that load the SP key
// pair and the IdP signing certificates from PEM files or from memory.
package certs

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/philiph/saml2-core/internal/core/ports"
)

// FileProvider loads certificates and the SP private key from PEM files on
// first use and caches the parsed result.
type FileProvider struct {
	idpCertPath string
	spCertPath  string
	spKeyPath   string

	once   sync.Once
	loaded *ports.SigningCertificatePair
	err    error
}

// NewFileProvider creates a provider reading from the given PEM paths. The
// IdP certificate file may contain multiple certificates for rotation.
func NewFileProvider(idpCertPath, spCertPath, spKeyPath string) *FileProvider {
	return &FileProvider{
		idpCertPath: idpCertPath,
		spCertPath:  spCertPath,
		spKeyPath:   spKeyPath,
	}
}

// GetCertificates loads and returns the certificate pair. The files are
// read exactly once; concurrent callers share the result.
func (p *FileProvider) GetCertificates() (*ports.SigningCertificatePair, error) {
	p.once.Do(p.load)
	return p.loaded, p.err
}

func (p *FileProvider) load() {
	idpCerts, err := LoadCertificates(p.idpCertPath)
	if err != nil {
		p.err = err
		return
	}
	spCert, err := LoadCertificate(p.spCertPath)
	if err != nil {
		p.err = err
		return
	}
	spKey, err := LoadPrivateKey(p.spKeyPath)
	if err != nil {
		p.err = err
		return
	}

	p.loaded = &ports.SigningCertificatePair{
		IdentityProviderCerts: idpCerts,
		ServiceProviderCert:   spCert,
		ServiceProviderKey:    spKey,
	}
}

// StaticProvider serves a pre-built certificate pair. Use it when the host
// manages key material itself, or when the SP key is not RSA.
type StaticProvider struct {
	Pair ports.SigningCertificatePair
}

// GetCertificates returns the configured pair.
func (p *StaticProvider) GetCertificates() (*ports.SigningCertificatePair, error) {
	if len(p.Pair.IdentityProviderCerts) == 0 {
		return nil, errors.New("no IdP certificates configured")
	}
	return &p.Pair, nil
}

// LoadCertificates loads X.509 certificates from a PEM file. Supports
// multiple certificates in a single file for rotation scenarios.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		data = rest
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}

	return certs, nil
}

// LoadCertificate loads a single X.509 certificate from a PEM file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	certs, err := LoadCertificates(path)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS8 first (modern format), then PKCS1 (legacy RSA format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}

	return rsaKey, nil
}

var _ ports.CertificateProvider = (*FileProvider)(nil)
var _ ports.CertificateProvider = (*StaticProvider)(nil)
