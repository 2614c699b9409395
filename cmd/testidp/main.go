// Command testidp runs a standalone test SAML Identity Provider for manual
// testing against this module. It registers the SP from flags and writes its
// own signing certificate to a PEM file the SP can trust.
// Usage: go run ./cmd/testidp
package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/crewjam/saml/samlidp"
)

func main() {
	port := flag.Int("port", 8443, "Port to listen on")
	spEntityID := flag.String("sp-entity-id", "http://localhost:9080/saml", "SP entity ID to register")
	spACSURL := flag.String("sp-acs", "http://localhost:9080/saml/acs", "SP assertion consumer URL")
	spSLOURL := flag.String("sp-slo", "http://localhost:9080/saml/slo", "SP single logout URL")
	certOut := flag.String("cert-out", "idp-cert.pem", "File to write the IdP signing certificate to")
	flag.Parse()

	// Generate self-signed certificate
	key, cert, err := generateSelfSignedCert()
	if err != nil {
		log.Fatalf("Failed to generate certificate: %v", err)
	}

	if err := writeCertPEM(*certOut, cert); err != nil {
		log.Fatalf("Failed to write certificate: %v", err)
	}
	log.Printf("IdP signing certificate written to %s", *certOut)

	store := &samlidp.MemoryStore{}

	baseURL, _ := url.Parse(fmt.Sprintf("http://localhost:%d", *port))

	idpServer, err := samlidp.New(samlidp.Options{
		URL:         *baseURL,
		Key:         key,
		Certificate: cert,
		Store:       store,
	})
	if err != nil {
		log.Fatalf("Failed to create IdP server: %v", err)
	}

	// Add test user via HTTP PUT (so password gets hashed properly)
	go func() {
		time.Sleep(100 * time.Millisecond) // Wait for server to start
		if err := addUserViaHTTP(fmt.Sprintf("http://localhost:%d", *port), "testuser", "password"); err != nil {
			log.Fatalf("Failed to add test user: %v", err)
		}
		log.Println("Added test user: testuser / password")

		if err := registerSP(fmt.Sprintf("http://localhost:%d", *port), *spEntityID, *spACSURL, *spSLOURL); err != nil {
			log.Printf("Warning: Failed to register SP %s: %v", *spEntityID, err)
		} else {
			log.Printf("Registered SP %s", *spEntityID)
		}
	}()

	// Print IdP info
	log.Printf("Test IdP starting on http://localhost:%d", *port)
	log.Printf("  Metadata: http://localhost:%d/metadata", *port)
	log.Printf("  SSO:      http://localhost:%d/sso", *port)
	log.Printf("  Login:    http://localhost:%d/login", *port)
	log.Println()
	log.Println("Test credentials: testuser / password")

	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), idpServer); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func addUserViaHTTP(baseURL, username, password string) error {
	user := samlidp.User{
		Name:              username,
		PlaintextPassword: &password,
		Email:             username + "@example.com",
		CommonName:        username,
		GivenName:         username,
		Surname:           "Test",
	}

	body, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, baseURL+"/users/"+username, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("put user status: %d", resp.StatusCode)
	}

	return nil
}

// registerSP registers the SP with the IdP from its endpoint URLs. The SP
// side of this module publishes no metadata document, so the descriptor is
// built here.
func registerSP(idpBaseURL, entityID, acsURL, sloURL string) error {
	metadata := fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID=%q>
  <SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location=%q/>
    <AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location=%q index="0"/>
  </SPSSODescriptor>
</EntityDescriptor>`, entityID, sloURL, acsURL)

	req, err := http.NewRequest(http.MethodPut, idpBaseURL+"/services/"+url.PathEscape(entityID), bytes.NewReader([]byte(metadata)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("register SP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("register SP status: %d", resp.StatusCode)
	}

	return nil
}

func writeCertPEM(path string, cert *x509.Certificate) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func generateSelfSignedCert() (*rsa.PrivateKey, *x509.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Test IdP",
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	return key, cert, nil
}
