package xmlsec

import (
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// Verifier validates enveloped XML-DSig signatures on SAML elements against
// a list of trusted certificates. The first certificate that verifies wins,
// which supports IdP certificate rollover.
type Verifier struct {
	roots  []*x509.Certificate
	logger *zap.Logger
}

// NewVerifier creates a verifier trusting the given certificates. The
// logger is optional; pass nil to disable verification logging.
func NewVerifier(certs []*x509.Certificate, logger *zap.Logger) *Verifier {
	return &Verifier{roots: certs, logger: logger}
}

// VerifyElement confirms the enveloped signature on el. The checks, in
// order, each fatal:
//
//  1. the document must have been parsed with whitespace preserved;
//  2. a <Signature> child must exist;
//  3. the signature's single reference URI must be empty (whole document)
//     or "#<id>" matching el's own id attribute — anything else is treated
//     as a signature-wrapping attempt;
//  4. the cryptographic signature must verify against a trusted
//     certificate.
func (v *Verifier) VerifyElement(doc *Document, el *etree.Element) error {
	if !doc.whitespacePreserved {
		return domain.SignatureError("document was parsed without whitespace preservation; signature digests cannot be trusted", nil)
	}

	sig := FindChild(el, "Signature")
	if sig == nil {
		return domain.SignatureError("element carries no signature", nil)
	}

	if err := v.checkReference(sig, el); err != nil {
		return err
	}

	idKey, _ := idAttribute(el)
	if idKey == "" {
		idKey = "ID"
	}

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: v.roots})
	ctx.IdAttribute = idKey

	if _, err := ctx.Validate(el); err != nil {
		return domain.SignatureError("signature verification failed", err)
	}

	if v.logger != nil {
		v.logger.Info("xml signature verified",
			zap.String("element", el.Tag),
			zap.String("algorithm", signatureAlgorithm(sig)),
		)
	}
	return nil
}

// checkReference enforces that the signature protects exactly the element
// being processed. A reference pointing anywhere else means the signed
// bytes and the processed bytes differ — the classic wrapping attack.
func (v *Verifier) checkReference(sig, el *etree.Element) error {
	signedInfo := FindChild(sig, "SignedInfo")
	if signedInfo == nil {
		return domain.SignatureError("signature has no SignedInfo", nil)
	}

	var refs []*etree.Element
	for _, child := range signedInfo.ChildElements() {
		if child.Tag == "Reference" {
			refs = append(refs, child)
		}
	}
	if len(refs) != 1 {
		return domain.SignatureError(fmt.Sprintf("signature must carry exactly one reference, found %d", len(refs)), nil)
	}

	uri := refs[0].SelectAttrValue("URI", "")
	if uri == "" {
		// Whole-document reference; nothing to cross-check.
		return nil
	}
	if !strings.HasPrefix(uri, "#") {
		return domain.SignatureError(fmt.Sprintf("external signature reference %q is not allowed", uri), nil)
	}

	_, elID := idAttribute(el)
	if elID == "" || uri[1:] != elID {
		return domain.SignatureError(fmt.Sprintf("signature reference %q does not match element ID %q", uri, elID), nil)
	}
	return nil
}

func signatureAlgorithm(sig *etree.Element) string {
	signedInfo := FindChild(sig, "SignedInfo")
	if signedInfo == nil {
		return ""
	}
	method := FindChild(signedInfo, "SignatureMethod")
	if method == nil {
		return ""
	}
	return method.SelectAttrValue("Algorithm", "")
}
