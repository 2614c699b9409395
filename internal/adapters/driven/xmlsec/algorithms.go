// Package xmlsec implements the XML signature and decryption engine for
// SAML protocol messages: enveloped XML-DSig signing and verification on
// top of goxmldsig, raw query-string signatures for the redirect binding,
// and EncryptedAssertion decryption.
package xmlsec

import (
	"crypto"
	"crypto/dsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"math/big"
	"strings"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// XML-DSig signature algorithm URIs supported by this module.
const (
	RSASHA1SignatureMethod   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	RSASHA256SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RSASHA512SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	DSASHA1SignatureMethod   = "http://www.w3.org/2000/09/xmldsig#dsa-sha1"
)

// dsaSignatureLen is the raw r||s encoding of a DSA signature with 160-bit
// subgroup order, as XML-DSig and the redirect binding require.
const dsaSignatureLen = 40

// Algorithm identifies one digest choice for signing.
type Algorithm struct {
	// Name is the short digest name: SHA1, SHA256 or SHA512.
	Name string

	// Hash is the digest implementation.
	Hash crypto.Hash
}

var algorithmsByName = map[string]Algorithm{
	"SHA1":   {Name: "SHA1", Hash: crypto.SHA1},
	"SHA256": {Name: "SHA256", Hash: crypto.SHA256},
	"SHA512": {Name: "SHA512", Hash: crypto.SHA512},
}

var algorithmsByURI = map[string]Algorithm{
	RSASHA1SignatureMethod:   algorithmsByName["SHA1"],
	RSASHA256SignatureMethod: algorithmsByName["SHA256"],
	RSASHA512SignatureMethod: algorithmsByName["SHA512"],
	DSASHA1SignatureMethod:   algorithmsByName["SHA1"],
}

// LookupAlgorithm resolves an algorithm by short name ("SHA256") or by its
// canonical XML-DSig URI. An unrecognized identifier is a configuration
// error naming the offending value.
func LookupAlgorithm(nameOrURI string) (Algorithm, error) {
	if alg, ok := algorithmsByName[strings.ToUpper(nameOrURI)]; ok {
		return alg, nil
	}
	if alg, ok := algorithmsByURI[nameOrURI]; ok {
		return alg, nil
	}
	return Algorithm{}, domain.ConfigError(fmt.Sprintf("unrecognized signature algorithm %q", nameOrURI))
}

// SignatureMethodURI maps a private key and an algorithm to the XML-DSig
// signature method URI for outbound messages. Unsupported key/digest pairs
// are configuration errors naming the pair.
func SignatureMethodURI(key interface{}, alg Algorithm) (string, error) {
	switch key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		switch alg.Hash {
		case crypto.SHA1:
			return RSASHA1SignatureMethod, nil
		case crypto.SHA256:
			return RSASHA256SignatureMethod, nil
		case crypto.SHA512:
			return RSASHA512SignatureMethod, nil
		}
	case *dsa.PrivateKey, *dsa.PublicKey:
		if alg.Hash == crypto.SHA1 {
			return DSASHA1SignatureMethod, nil
		}
	}
	return "", domain.ConfigError(fmt.Sprintf("unsupported key type %T with algorithm %s", key, alg.Name))
}

// QuerySigner computes detached signatures over raw bytes, as the redirect
// binding requires for its query-string signature. Stateless and safe for
// concurrent use.
type QuerySigner struct {
	key interface{}
	alg Algorithm
	uri string
}

// NewQuerySigner builds a signer for the given private key and algorithm.
func NewQuerySigner(key interface{}, alg Algorithm) (*QuerySigner, error) {
	uri, err := SignatureMethodURI(key, alg)
	if err != nil {
		return nil, err
	}
	return &QuerySigner{key: key, alg: alg, uri: uri}, nil
}

// MethodURI returns the SigAlg URI the signature is computed under.
func (s *QuerySigner) MethodURI() string {
	return s.uri
}

// Sign signs the exact byte sequence with PKCS#1 v1.5 for RSA keys or raw
// r||s DSA for DSA keys.
func (s *QuerySigner) Sign(data []byte) ([]byte, error) {
	digest := hashBytes(s.alg.Hash, data)
	switch key := s.key.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, key, s.alg.Hash, digest)
	case *dsa.PrivateKey:
		r, sv, err := dsa.Sign(rand.Reader, key, digest)
		if err != nil {
			return nil, fmt.Errorf("dsa sign: %w", err)
		}
		return marshalDSASignature(r, sv), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported signing key type %T", s.key))
	}
}

// QueryVerifier verifies detached signatures over raw bytes. Stateless and
// safe for concurrent use.
type QueryVerifier struct {
	key interface{}
	alg Algorithm
}

// NewQueryVerifier builds a verifier for the given public key and the
// algorithm identified by sigAlg (URI or short name).
func NewQueryVerifier(key interface{}, sigAlg string) (*QueryVerifier, error) {
	alg, err := LookupAlgorithm(sigAlg)
	if err != nil {
		return nil, err
	}
	if _, err := SignatureMethodURI(key, alg); err != nil {
		return nil, err
	}
	return &QueryVerifier{key: key, alg: alg}, nil
}

// Verify checks the signature over the exact byte sequence. A mismatch is a
// signature validation error.
func (v *QueryVerifier) Verify(data, signature []byte) error {
	digest := hashBytes(v.alg.Hash, data)
	switch key := v.key.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, v.alg.Hash, digest, signature); err != nil {
			return domain.SignatureError("query signature verification failed", err)
		}
		return nil
	case *dsa.PublicKey:
		r, s, err := unmarshalDSASignature(signature)
		if err != nil {
			return domain.SignatureError("malformed DSA signature", err)
		}
		if !dsa.Verify(key, digest, r, s) {
			return domain.SignatureError("query signature verification failed", nil)
		}
		return nil
	default:
		return domain.ConfigError(fmt.Sprintf("unsupported verification key type %T", v.key))
	}
}

func hashBytes(h crypto.Hash, data []byte) []byte {
	hasher := h.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

func marshalDSASignature(r, s *big.Int) []byte {
	sig := make([]byte, dsaSignatureLen)
	r.FillBytes(sig[:dsaSignatureLen/2])
	s.FillBytes(sig[dsaSignatureLen/2:])
	return sig
}

func unmarshalDSASignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != dsaSignatureLen {
		return nil, nil, fmt.Errorf("DSA signature must be %d bytes, got %d", dsaSignatureLen, len(sig))
	}
	r = new(big.Int).SetBytes(sig[:dsaSignatureLen/2])
	s = new(big.Int).SetBytes(sig[dsaSignatureLen/2:])
	return r, s, nil
}
