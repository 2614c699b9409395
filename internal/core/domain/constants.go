package domain

// XML namespaces used by SAML 2.0 protocol messages.
const (
	ProtocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	AssertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	SignatureNamespace = "http://www.w3.org/2000/09/xmldsig#"
	SOAPNamespace      = "http://schemas.xmlsoap.org/soap/envelope/"
)

// SAML 2.0 status URIs. StatusNoPassive is surfaced as a distinct condition:
// it means an IsPassive request could not be satisfied without user
// interaction, which hosts typically handle by retrying interactively.
const (
	StatusSuccess       = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusRequester     = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusResponder     = "urn:oasis:names:tc:SAML:2.0:status:Responder"
	StatusNoPassive     = "urn:oasis:names:tc:SAML:2.0:status:NoPassive"
	StatusPartialLogout = "urn:oasis:names:tc:SAML:2.0:status:PartialLogout"
)

// SAMLVersion is the only protocol version this module speaks.
const SAMLVersion = "2.0"

// AuthnContext comparison values per SAML 2.0 Core section 3.3.2.2.1.
var validComparisons = map[string]bool{
	"":        true, // default to "exact" per SAML spec
	"exact":   true,
	"minimum": true,
	"maximum": true,
	"better":  true,
}

// ValidateAuthnContextComparison validates that the comparison value is valid
// per SAML 2.0 spec. Returns an error if the value is invalid, nil otherwise.
func ValidateAuthnContextComparison(c string) error {
	if !validComparisons[c] {
		return ConfigError("invalid AuthnContextComparison: must be one of exact, minimum, maximum, better, or empty")
	}
	return nil
}
