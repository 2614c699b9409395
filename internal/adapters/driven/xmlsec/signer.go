package xmlsec

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// Signer produces enveloped XML-DSig signatures over SAML elements using
// exclusive canonicalization. The SP certificate chain is attached as
// KeyInfo so the IdP can locate the verification key.
type Signer struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	uri  string
}

// NewSigner builds an XML signer for the SP key pair and digest algorithm.
// XML-DSig signing requires an RSA key here; DSA keys are accepted only by
// the query-string signer.
func NewSigner(key interface{}, cert *x509.Certificate, alg Algorithm) (*Signer, error) {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, domain.ConfigError(fmt.Sprintf("XML signing requires an RSA key, got %T", key))
	}
	uri, err := SignatureMethodURI(rsaKey, alg)
	if err != nil {
		return nil, err
	}
	return &Signer{key: rsaKey, cert: cert, uri: uri}, nil
}

// SignElement signs the element carrying the given ID attribute in place.
// The signature references "#<id>", and the resulting <Signature> element
// is inserted as the sibling immediately after the element's <Issuer>
// child, which is where the SAML protocol schema expects it.
func (s *Signer) SignElement(doc *Document, id string) error {
	el := doc.ElementByID(id)
	if el == nil {
		return domain.FormatError(fmt.Sprintf("no element with ID %q to sign", id), nil)
	}

	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{s.cert.Raw},
		PrivateKey:  s.key,
	})

	ctx := dsig.NewDefaultSigningContext(keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	ctx.IdAttribute = "ID"
	if err := ctx.SetSignatureMethod(s.uri); err != nil {
		return domain.ConfigError(fmt.Sprintf("signature method %s: %v", s.uri, err))
	}

	sig, err := ctx.ConstructSignature(el, true)
	if err != nil {
		return domain.SignatureError("construct signature", err)
	}

	insertAfterIssuer(el, sig)
	return nil
}

// insertAfterIssuer places sig directly after el's Issuer child, or as the
// first child when no Issuer is present.
func insertAfterIssuer(el *etree.Element, sig *etree.Element) {
	issuer := FindChild(el, "Issuer")
	if issuer == nil {
		el.InsertChildAt(0, sig)
		return
	}
	el.InsertChildAt(issuer.Index()+1, sig)
}
