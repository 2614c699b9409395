// Package message builds outbound SAML 2.0 protocol messages: AuthnRequest,
// LogoutRequest and LogoutResponse documents ready for a wire binding to
// serialize. Construction is pure: no network or storage side effects.
package message

import (
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/jonboulle/clockwork"

	"github.com/philiph/saml2-core/internal/core/domain"
)

// issueInstantFormat is the UTC timestamp layout SAML requires.
const issueInstantFormat = "2006-01-02T15:04:05Z"

// Factory builds protocol messages for one resolved deployment. Stateless
// and safe for concurrent use.
type Factory struct {
	cfg   *domain.ResolvedConfig
	clock clockwork.Clock
}

// NewFactory creates a message factory. The clock is injectable for tests;
// pass clockwork.NewRealClock() in production.
func NewFactory(cfg *domain.ResolvedConfig, clock clockwork.Clock) *Factory {
	return &Factory{cfg: cfg, clock: clock}
}

// AuthnRequest builds an authentication request addressed to the IdP's
// single sign-on endpoint. The supplied requestID must satisfy the
// identifier entropy invariant; short identifiers are rejected outright.
func (f *Factory) AuthnRequest(requestID string) (*domain.ProtocolMessage, *etree.Document, error) {
	idp := f.cfg.IdentityProvider
	msg := &domain.ProtocolMessage{
		Type:         domain.MessageTypeAuthnRequest,
		ID:           requestID,
		IssueInstant: f.clock.Now().UTC(),
		Issuer:       f.cfg.ServiceProvider.EntityID,
		Destination:  idp.SingleSignOnServiceURL,
	}
	if err := msg.Validate(); err != nil {
		return nil, nil, err
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:AuthnRequest")
	root.CreateAttr("xmlns:samlp", domain.ProtocolNamespace)
	root.CreateAttr("xmlns:saml", domain.AssertionNamespace)
	addCommonAttrs(root, msg)
	root.CreateAttr("AssertionConsumerServiceURL", f.cfg.ServiceProvider.AssertionConsumerServiceURL)
	root.CreateAttr("ProtocolBinding", saml.HTTPPostBinding)
	if idp.ForceAuthn {
		root.CreateAttr("ForceAuthn", "true")
	}
	if idp.IsPassive {
		root.CreateAttr("IsPassive", "true")
	}

	addIssuer(root, msg.Issuer)

	if idp.NameIDPolicyFormat != "" {
		policy := root.CreateElement("samlp:NameIDPolicy")
		policy.CreateAttr("Format", idp.NameIDPolicyFormat)
		if idp.AllowCreate {
			policy.CreateAttr("AllowCreate", "true")
		}
	}

	if len(idp.RequestedAuthnContexts) > 0 {
		rac := root.CreateElement("samlp:RequestedAuthnContext")
		comparison := idp.AuthnContextComparison
		if comparison == "" {
			comparison = "exact"
		}
		rac.CreateAttr("Comparison", comparison)
		for _, classRef := range idp.RequestedAuthnContexts {
			rac.CreateElement("saml:AuthnContextClassRef").SetText(classRef)
		}
	}

	return msg, doc, nil
}

// LogoutRequest builds a logout request for the given principal, carrying
// the NameID and session index the IdP issued at login.
func (f *Factory) LogoutRequest(requestID, nameID, nameIDFormat, sessionIndex string) (*domain.ProtocolMessage, *etree.Document, error) {
	msg := &domain.ProtocolMessage{
		Type:         domain.MessageTypeLogoutRequest,
		ID:           requestID,
		IssueInstant: f.clock.Now().UTC(),
		Issuer:       f.cfg.ServiceProvider.EntityID,
		Destination:  f.cfg.IdentityProvider.SingleLogoutServiceURL,
	}
	if err := msg.Validate(); err != nil {
		return nil, nil, err
	}
	if nameID == "" {
		return nil, nil, domain.ConfigError("logout request requires the subject NameID")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutRequest")
	root.CreateAttr("xmlns:samlp", domain.ProtocolNamespace)
	root.CreateAttr("xmlns:saml", domain.AssertionNamespace)
	addCommonAttrs(root, msg)

	addIssuer(root, msg.Issuer)

	subject := root.CreateElement("saml:NameID")
	if nameIDFormat != "" {
		subject.CreateAttr("Format", nameIDFormat)
	}
	subject.SetText(nameID)

	if sessionIndex != "" {
		root.CreateElement("samlp:SessionIndex").SetText(sessionIndex)
	}

	return msg, doc, nil
}

// LogoutResponse builds the answer to an IdP-initiated logout request,
// correlating back to it via InResponseTo.
func (f *Factory) LogoutResponse(responseID, inResponseTo, statusCode string) (*domain.ProtocolMessage, *etree.Document, error) {
	msg := &domain.ProtocolMessage{
		Type:         domain.MessageTypeLogoutResponse,
		ID:           responseID,
		IssueInstant: f.clock.Now().UTC(),
		Issuer:       f.cfg.ServiceProvider.EntityID,
		Destination:  f.cfg.IdentityProvider.SingleLogoutServiceURL,
		InResponseTo: inResponseTo,
		StatusCode:   statusCode,
	}
	if err := msg.Validate(); err != nil {
		return nil, nil, err
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutResponse")
	root.CreateAttr("xmlns:samlp", domain.ProtocolNamespace)
	root.CreateAttr("xmlns:saml", domain.AssertionNamespace)
	addCommonAttrs(root, msg)
	root.CreateAttr("InResponseTo", msg.InResponseTo)

	addIssuer(root, msg.Issuer)

	status := root.CreateElement("samlp:Status")
	status.CreateElement("samlp:StatusCode").CreateAttr("Value", msg.StatusCode)

	return msg, doc, nil
}

func addCommonAttrs(root *etree.Element, msg *domain.ProtocolMessage) {
	root.CreateAttr("ID", msg.ID)
	root.CreateAttr("Version", domain.SAMLVersion)
	root.CreateAttr("IssueInstant", msg.IssueInstant.Format(issueInstantFormat))
	root.CreateAttr("Destination", msg.Destination)
}

func addIssuer(root *etree.Element, issuer string) {
	root.CreateElement("saml:Issuer").SetText(issuer)
}

// FormatIssueInstant renders a timestamp the way SAML messages carry them.
func FormatIssueInstant(t time.Time) string {
	return t.UTC().Format(issueInstantFormat)
}
