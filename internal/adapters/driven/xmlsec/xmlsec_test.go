package xmlsec

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"

	"github.com/philiph/saml2-core/internal/core/domain"
)

func testKeyPair(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return key, cert
}

func buildSignedMessage(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, id string) []byte {
	t.Helper()

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutRequest")
	root.CreateAttr("xmlns:samlp", domain.ProtocolNamespace)
	root.CreateAttr("xmlns:saml", domain.AssertionNamespace)
	root.CreateAttr("ID", id)
	root.CreateAttr("Version", domain.SAMLVersion)
	root.CreateElement("saml:Issuer").SetText("https://sp.example.com")
	root.CreateElement("saml:NameID").SetText("user@example.com")

	alg, err := LookupAlgorithm("SHA256")
	if err != nil {
		t.Fatalf("LookupAlgorithm: %v", err)
	}
	signer, err := NewSigner(key, cert, alg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if err := signer.SignElement(Wrap(doc, true), id); err != nil {
		t.Fatalf("SignElement: %v", err)
	}

	serialized, err := doc.WriteToBytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return serialized
}

func TestSignThenVerify(t *testing.T) {
	key, cert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	doc, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	verifier := NewVerifier([]*x509.Certificate{cert}, nil)
	if err := verifier.VerifyElement(doc, doc.Root()); err != nil {
		t.Errorf("VerifyElement: %v", err)
	}
}

func TestSignaturePlacedAfterIssuer(t *testing.T) {
	key, cert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	doc, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	children := doc.Root().ChildElements()
	if len(children) < 2 {
		t.Fatalf("expected at least 2 children, got %d", len(children))
	}
	if children[0].Tag != "Issuer" {
		t.Errorf("first child = %s, want Issuer", children[0].Tag)
	}
	if children[1].Tag != "Signature" {
		t.Errorf("second child = %s, want Signature", children[1].Tag)
	}
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	key, cert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	tampered := strings.Replace(string(serialized), "user@example.com", "admin@example.com", 1)

	doc, err := Parse([]byte(tampered))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	verifier := NewVerifier([]*x509.Certificate{cert}, nil)
	err = verifier.VerifyElement(doc, doc.Root())
	if err == nil {
		t.Fatal("tampered document verified")
	}
	if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != domain.ErrCodeSignatureInvalid {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifyRejectsUntrustedSigner(t *testing.T) {
	key, cert := testKeyPair(t)
	_, otherCert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	doc, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	verifier := NewVerifier([]*x509.Certificate{otherCert}, nil)
	if err := verifier.VerifyElement(doc, doc.Root()); err == nil {
		t.Error("signature from untrusted key verified")
	}
}

func TestVerifyRejectsWrappedReference(t *testing.T) {
	key, cert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	doc, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Point the signature's reference at a different identifier, as a
	// wrapping attack would.
	sig := FindChild(doc.Root(), "Signature")
	ref := FindDescendant(sig, "Reference")
	ref.RemoveAttr("URI")
	ref.CreateAttr("URI", "#"+domain.NewMessageID())

	verifier := NewVerifier([]*x509.Certificate{cert}, nil)
	err = verifier.VerifyElement(doc, doc.Root())
	if err == nil {
		t.Fatal("mismatched reference URI accepted")
	}
	if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != domain.ErrCodeSignatureInvalid {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifyRequiresWhitespacePreservation(t *testing.T) {
	key, cert := testKeyPair(t)
	id := domain.NewMessageID()
	serialized := buildSignedMessage(t, key, cert, id)

	raw := etree.NewDocument()
	if err := raw.ReadFromBytes(serialized); err != nil {
		t.Fatalf("read: %v", err)
	}

	verifier := NewVerifier([]*x509.Certificate{cert}, nil)
	err := verifier.VerifyElement(Wrap(raw, false), raw.Root())
	if err == nil {
		t.Fatal("whitespace-normalized document accepted")
	}
	if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != domain.ErrCodeSignatureInvalid {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifyRejectsUnsignedElement(t *testing.T) {
	_, cert := testKeyPair(t)

	doc, err := Parse([]byte(`<samlp:Response xmlns:samlp="` + domain.ProtocolNamespace + `" ID="_abc"/>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	verifier := NewVerifier([]*x509.Certificate{cert}, nil)
	if err := verifier.VerifyElement(doc, doc.Root()); err == nil {
		t.Error("element without signature accepted")
	}
}

func TestLookupAlgorithm(t *testing.T) {
	tests := []struct {
		in       string
		wantHash crypto.Hash
		wantErr  bool
	}{
		{"SHA1", crypto.SHA1, false},
		{"sha256", crypto.SHA256, false},
		{"SHA512", crypto.SHA512, false},
		{RSASHA256SignatureMethod, crypto.SHA256, false},
		{DSASHA1SignatureMethod, crypto.SHA1, false},
		{"MD5", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		alg, err := LookupAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("LookupAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && alg.Hash != tt.wantHash {
			t.Errorf("LookupAlgorithm(%q) hash = %v, want %v", tt.in, alg.Hash, tt.wantHash)
		}
	}
}

func TestQuerySignerRoundTrip(t *testing.T) {
	key, _ := testKeyPair(t)
	alg, err := LookupAlgorithm("SHA256")
	if err != nil {
		t.Fatalf("LookupAlgorithm: %v", err)
	}

	signer, err := NewQuerySigner(key, alg)
	if err != nil {
		t.Fatalf("NewQuerySigner: %v", err)
	}
	if signer.MethodURI() != RSASHA256SignatureMethod {
		t.Errorf("MethodURI = %q, want %q", signer.MethodURI(), RSASHA256SignatureMethod)
	}

	payload := []byte("SAMLRequest=abc&RelayState=xyz&SigAlg=alg")
	signature, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier, err := NewQueryVerifier(&key.PublicKey, RSASHA256SignatureMethod)
	if err != nil {
		t.Fatalf("NewQueryVerifier: %v", err)
	}
	if err := verifier.Verify(payload, signature); err != nil {
		t.Errorf("Verify: %v", err)
	}

	payload[0] ^= 0xff
	if err := verifier.Verify(payload, signature); err == nil {
		t.Error("tampered payload verified")
	}
}

func TestSignerRejectsNonRSAKey(t *testing.T) {
	alg, _ := LookupAlgorithm("SHA1")
	if _, err := NewSigner("not a key", nil, alg); err == nil {
		t.Error("non-RSA key accepted for XML signing")
	}
}
