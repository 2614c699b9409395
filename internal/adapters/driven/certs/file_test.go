package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/philiph/saml2-core/internal/core/ports"
)

func writeTestPEM(t *testing.T, dir, name string, blocks ...*pem.Block) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	for _, block := range blocks {
		if err := pem.Encode(f, block); err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
	}
	return path
}

func testCertDER(t *testing.T, key *rsa.PrivateKey, cn string) []byte {
	t.Helper()

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der
}

func TestFileProviderLoadsPair(t *testing.T) {
	dir := t.TempDir()

	idpKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	spKey, _ := rsa.GenerateKey(rand.Reader, 2048)

	idpPath := writeTestPEM(t, dir, "idp.pem",
		&pem.Block{Type: "CERTIFICATE", Bytes: testCertDER(t, idpKey, "idp-old")},
		&pem.Block{Type: "CERTIFICATE", Bytes: testCertDER(t, idpKey, "idp-new")},
	)
	spCertPath := writeTestPEM(t, dir, "sp.pem",
		&pem.Block{Type: "CERTIFICATE", Bytes: testCertDER(t, spKey, "sp")},
	)
	spKeyPath := writeTestPEM(t, dir, "sp-key.pem",
		&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(spKey)},
	)

	provider := NewFileProvider(idpPath, spCertPath, spKeyPath)
	pair, err := provider.GetCertificates()
	if err != nil {
		t.Fatalf("GetCertificates: %v", err)
	}

	if len(pair.IdentityProviderCerts) != 2 {
		t.Errorf("got %d IdP certificates, want 2 (rotation)", len(pair.IdentityProviderCerts))
	}
	if pair.ServiceProviderCert.Subject.CommonName != "sp" {
		t.Errorf("SP cert CN = %q, want sp", pair.ServiceProviderCert.Subject.CommonName)
	}
	loadedKey, ok := pair.ServiceProviderKey.(*rsa.PrivateKey)
	if !ok {
		t.Fatalf("SP key type = %T, want *rsa.PrivateKey", pair.ServiceProviderKey)
	}
	if loadedKey.N.Cmp(spKey.N) != 0 {
		t.Error("loaded SP key does not match written key")
	}

	// Second call serves the cached pair.
	again, err := provider.GetCertificates()
	if err != nil {
		t.Fatalf("GetCertificates (cached): %v", err)
	}
	if again != pair {
		t.Error("second call did not return the cached pair")
	}
}

func TestFileProviderConcurrentFirstUse(t *testing.T) {
	dir := t.TempDir()
	key, _ := rsa.GenerateKey(rand.Reader, 2048)

	idpPath := writeTestPEM(t, dir, "idp.pem",
		&pem.Block{Type: "CERTIFICATE", Bytes: testCertDER(t, key, "idp")},
	)
	spCertPath := writeTestPEM(t, dir, "sp.pem",
		&pem.Block{Type: "CERTIFICATE", Bytes: testCertDER(t, key, "sp")},
	)
	spKeyPath := writeTestPEM(t, dir, "sp-key.pem",
		&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)},
	)

	provider := NewFileProvider(idpPath, spCertPath, spKeyPath)

	const callers = 8
	pairs := make([]*ports.SigningCertificatePair, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := provider.GetCertificates()
			if err != nil {
				t.Errorf("GetCertificates: %v", err)
				return
			}
			pairs[i] = pair
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if pairs[i] != pairs[0] {
			t.Fatalf("caller %d got a different pair instance", i)
		}
	}
}

func TestLoadPrivateKeyPKCS8(t *testing.T) {
	dir := t.TempDir()
	key, _ := rsa.GenerateKey(rand.Reader, 2048)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	path := writeTestPEM(t, dir, "key.pem", &pem.Block{Type: "PRIVATE KEY", Bytes: der})

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match written key")
	}
}

func TestLoadCertificatesErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadCertificates(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("missing file accepted")
	}

	empty := writeTestPEM(t, dir, "empty.pem")
	if _, err := LoadCertificates(empty); err == nil {
		t.Error("file without certificates accepted")
	}
}

func TestStaticProviderRequiresIdPCerts(t *testing.T) {
	provider := &StaticProvider{}
	if _, err := provider.GetCertificates(); err == nil {
		t.Error("empty static provider accepted")
	}
}
