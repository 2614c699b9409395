package xmlsec

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// Document wraps an etree document together with the whitespace-preservation
// fact the signature engine depends on. XML-DSig canonicalization is
// whitespace-sensitive: verifying a document whose insignificant whitespace
// was normalized away produces digests that never match. Parse always
// preserves whitespace; Wrap lets callers that parsed elsewhere assert what
// they did.
type Document struct {
	doc                 *etree.Document
	whitespacePreserved bool
}

// Parse reads an XML document, preserving whitespace exactly as received.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, domain.FormatError("malformed XML document", err)
	}
	if doc.Root() == nil {
		return nil, domain.FormatError("empty XML document", nil)
	}
	return &Document{doc: doc, whitespacePreserved: true}, nil
}

// Wrap adopts an existing etree document. Callers must state truthfully
// whether whitespace survived parsing; the verifier refuses documents where
// it did not.
func Wrap(doc *etree.Document, whitespacePreserved bool) *Document {
	return &Document{doc: doc, whitespacePreserved: whitespacePreserved}
}

// Root returns the document's root element.
func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// Bytes serializes the document without re-indenting.
func (d *Document) Bytes() ([]byte, error) {
	return d.doc.WriteToBytes()
}

// ElementByID finds the element whose ID attribute equals id. SAML schemas
// declare their ID attributes outside the documents themselves, so standard
// schema-aware ID resolution never applies; instead every element is
// scanned for an attribute locally named "id" in any casing.
func (d *Document) ElementByID(id string) *etree.Element {
	return findByID(d.doc.Root(), id)
}

func findByID(el *etree.Element, id string) *etree.Element {
	if el == nil {
		return nil
	}
	if _, value := idAttribute(el); value == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// idAttribute returns the key and value of the element's id attribute,
// preferring the conventional "ID" casing when present.
func idAttribute(el *etree.Element) (key, value string) {
	for _, attr := range el.Attr {
		if attr.Key == "ID" && attr.Space == "" {
			return attr.Key, attr.Value
		}
	}
	for _, attr := range el.Attr {
		if attr.Space == "" && strings.EqualFold(attr.Key, "id") {
			return attr.Key, attr.Value
		}
	}
	return "", ""
}

// FindChild returns the first direct child element with the given local
// name, regardless of namespace prefix.
func FindChild(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

// FindDescendant returns the first descendant element with the given local
// name, searching depth-first.
func FindDescendant(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
		if found := FindDescendant(child, local); found != nil {
			return found
		}
	}
	return nil
}
