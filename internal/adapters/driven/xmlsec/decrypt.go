package xmlsec

import (
	"crypto/rsa"
	"fmt"

	"github.com/beevik/etree"
	"github.com/crewjam/saml/xmlenc"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// ExtractAssertion locates the assertion inside a response element,
// decrypting an <EncryptedAssertion> with the SP private key when the IdP
// encrypted it. Returns the assertion element together with the document
// that contains it: the response's own document for a plain assertion, or a
// fresh whitespace-preserving document holding the decrypted plaintext.
// The boolean reports whether decryption happened.
func ExtractAssertion(doc *Document, el *etree.Element, spKey interface{}) (*Document, *etree.Element, bool, error) {
	if enc := FindDescendant(el, "EncryptedAssertion"); enc != nil {
		assertionDoc, assertion, err := decryptAssertion(enc, spKey)
		if err != nil {
			return nil, nil, false, err
		}
		return assertionDoc, assertion, true, nil
	}

	if assertion := FindDescendant(el, "Assertion"); assertion != nil {
		return doc, assertion, false, nil
	}

	return nil, nil, false, domain.FormatError("response carries no assertion", nil)
}

func decryptAssertion(enc *etree.Element, spKey interface{}) (*Document, *etree.Element, error) {
	rsaKey, ok := spKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, domain.ConfigError(fmt.Sprintf("assertion decryption requires an RSA key, got %T", spKey))
	}

	encData := FindChild(enc, "EncryptedData")
	if encData == nil {
		return nil, nil, domain.FormatError("EncryptedAssertion carries no EncryptedData", nil)
	}

	plaintext, err := xmlenc.Decrypt(rsaKey, encData)
	if err != nil {
		return nil, nil, domain.FormatError("decrypt assertion", err)
	}

	doc, err := Parse(plaintext)
	if err != nil {
		return nil, nil, domain.FormatError("decrypted assertion is not valid XML", err)
	}
	return doc, doc.Root(), nil
}
