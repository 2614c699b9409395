package saml2core

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/philiph/saml2-core/internal/adapters/driven/xmlsec"
	"github.com/philiph/saml2-core/internal/core/domain"
)

// Validator runs the response validation pipeline: status, correlation,
// decryption, signature, replay, validity window and issuer checks, in that
// order. Every step is fatal; the first failure wins.
type Validator struct {
	cfg      *domain.ResolvedConfig
	verifier *xmlsec.Verifier
	spKey    interface{}
	idCache  *MemoryIDCache
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewValidator creates a validator for one resolved deployment.
func NewValidator(cfg *domain.ResolvedConfig, verifier *xmlsec.Verifier, spKey interface{}, idCache *MemoryIDCache, clock clockwork.Clock, logger *zap.Logger) *Validator {
	return &Validator{
		cfg:      cfg,
		verifier: verifier,
		spKey:    spKey,
		idCache:  idCache,
		clock:    clock,
		logger:   logger,
	}
}

// LogoutDemand is a validated IdP-initiated logout request.
type LogoutDemand struct {
	RequestID    string
	Issuer       string
	NameID       string
	SessionIndex string
}

// ValidateSSOResponse checks an inbound SSO Response element against the
// pending round trip and returns the validated assertion.
func (v *Validator) ValidateSSOResponse(doc *xmlsec.Document, el *etree.Element, pending *domain.PendingCorrelation) (*domain.Assertion, error) {
	if el.Tag != "Response" {
		return nil, domain.FormatError(fmt.Sprintf("expected a Response element, got %s", el.Tag), nil)
	}

	if err := v.checkStatus(el); err != nil {
		return nil, err
	}
	if err := v.checkCorrelation(el, pending); err != nil {
		return nil, err
	}
	if err := v.checkDestination(el, v.cfg.ServiceProvider.AssertionConsumerServiceURL); err != nil {
		return nil, err
	}

	responseSigned := false
	if xmlsec.FindChild(el, "Signature") != nil {
		if err := v.verifier.VerifyElement(doc, el); err != nil {
			return nil, err
		}
		responseSigned = true
	}

	assertionDoc, assertionEl, _, err := xmlsec.ExtractAssertion(doc, el, v.spKey)
	if err != nil {
		return nil, err
	}

	assertionSigned, err := v.checkAssertionSignature(assertionDoc, assertionEl, responseSigned)
	if err != nil {
		return nil, err
	}

	assertion, err := parseAssertion(assertionEl)
	if err != nil {
		return nil, err
	}
	assertion.Signed = assertionSigned

	if err := v.checkSubjectConfirmation(assertionEl, pending); err != nil {
		return nil, err
	}
	if err := v.checkTimeWindow(assertion); err != nil {
		return nil, err
	}
	if err := v.checkIssuer(assertion); err != nil {
		return nil, err
	}
	if err := v.checkReplay(assertion); err != nil {
		return nil, err
	}

	if v.logger != nil {
		v.logger.Info("sso response validated",
			zap.String("assertion_id", assertion.ID),
			zap.String("issuer", assertion.Issuer),
			zap.Bool("assertion_signed", assertionSigned),
		)
	}
	return assertion, nil
}

// ValidateLogoutResponse checks the IdP's answer to an SP-initiated logout.
// PartialLogout counts as success: the IdP ended what sessions it could.
func (v *Validator) ValidateLogoutResponse(doc *xmlsec.Document, el *etree.Element, pending *domain.PendingCorrelation) error {
	if el.Tag != "LogoutResponse" {
		return domain.FormatError(fmt.Sprintf("expected a LogoutResponse element, got %s", el.Tag), nil)
	}

	statusCode, err := statusCodeOf(el)
	if err != nil {
		return err
	}
	if statusCode != domain.StatusSuccess && statusCode != domain.StatusPartialLogout {
		return domain.StatusError(statusCode)
	}

	if err := v.checkCorrelation(el, pending); err != nil {
		return err
	}

	if issuer := issuerOf(el); issuer != "" && issuer != v.cfg.IdentityProvider.EntityID {
		return domain.IssuerError(fmt.Sprintf("logout response issuer %q is not the configured identity provider", issuer))
	}
	return nil
}

// ValidateLogoutRequest checks an inbound IdP-initiated logout request. The
// wire signature has already been verified by the binding; this validates
// the message content.
func (v *Validator) ValidateLogoutRequest(doc *xmlsec.Document, el *etree.Element) (*LogoutDemand, error) {
	if el.Tag != "LogoutRequest" {
		return nil, domain.FormatError(fmt.Sprintf("expected a LogoutRequest element, got %s", el.Tag), nil)
	}

	requestID := el.SelectAttrValue("ID", "")
	if err := domain.ValidateMessageID(requestID); err != nil {
		return nil, domain.FormatError("logout request ID is too short", err)
	}

	issuer := issuerOf(el)
	if issuer != v.cfg.IdentityProvider.EntityID {
		return nil, domain.IssuerError(fmt.Sprintf("logout request issuer %q is not the configured identity provider", issuer))
	}

	if raw := el.SelectAttrValue("NotOnOrAfter", ""); raw != "" {
		deadline, err := parseInstant(raw)
		if err != nil {
			return nil, err
		}
		if !v.clock.Now().Add(-v.cfg.IdentityProvider.ClockSkew).Before(deadline) {
			return nil, domain.TimeWindowError("logout request is no longer valid")
		}
	}

	if !v.idCache.MarkConsumed(requestID, v.clock.Now().Add(v.cfg.IdentityProvider.ClockSkew)) {
		return nil, domain.ReplayError(fmt.Sprintf("logout request %s was already processed", requestID))
	}

	nameID := xmlsec.FindChild(el, "NameID")
	if nameID == nil {
		return nil, domain.FormatError("logout request carries no NameID", nil)
	}

	demand := &LogoutDemand{
		RequestID: requestID,
		Issuer:    issuer,
		NameID:    nameID.Text(),
	}
	if si := xmlsec.FindChild(el, "SessionIndex"); si != nil {
		demand.SessionIndex = si.Text()
	}
	return demand, nil
}

// checkStatus enforces a Success top-level status. NoPassive is reported as
// its own condition so hosts can retry interactively.
func (v *Validator) checkStatus(el *etree.Element) error {
	statusCode, err := statusCodeOf(el)
	if err != nil {
		return err
	}
	switch statusCode {
	case domain.StatusSuccess:
		return nil
	case domain.StatusNoPassive:
		return domain.NoPassiveError(statusCode)
	}

	// Second-level status codes refine top-level Requester/Responder.
	if nested := nestedStatusCodeOf(el); nested == domain.StatusNoPassive {
		return domain.NoPassiveError(nested)
	}
	return domain.StatusError(statusCode)
}

// checkCorrelation matches the message's InResponseTo against the pending
// round trip. A response that answers no outstanding request is treated as
// a replay.
func (v *Validator) checkCorrelation(el *etree.Element, pending *domain.PendingCorrelation) error {
	inResponseTo := el.SelectAttrValue("InResponseTo", "")
	if pending == nil || !pending.Matches(inResponseTo) {
		return domain.ReplayError(fmt.Sprintf("response %q does not answer any outstanding request", inResponseTo))
	}
	return nil
}

// checkDestination enforces the Destination attribute when present. A signed
// message delivered to the wrong endpoint was relayed by someone.
func (v *Validator) checkDestination(el *etree.Element, expected string) error {
	destination := el.SelectAttrValue("Destination", "")
	if destination != "" && destination != expected {
		return domain.FormatError(fmt.Sprintf("response destination %q does not match %q", destination, expected), nil)
	}
	return nil
}

// checkAssertionSignature verifies the assertion's own signature, or, when
// the deployment opts out of assertion signatures, requires that the
// enclosing response was signed instead. Something must always be signed.
func (v *Validator) checkAssertionSignature(doc *xmlsec.Document, el *etree.Element, responseSigned bool) (bool, error) {
	hasSignature := xmlsec.FindChild(el, "Signature") != nil

	if v.cfg.ServiceProvider.OmitAssertionSignatureCheck {
		if !responseSigned {
			return false, domain.SignatureError("assertion signature checking is disabled but the response is not signed", nil)
		}
		return false, nil
	}

	if !hasSignature {
		return false, domain.SignatureError("assertion is not signed", nil)
	}
	if err := v.verifier.VerifyElement(doc, el); err != nil {
		return false, err
	}
	return true, nil
}

// checkSubjectConfirmation cross-checks the bearer confirmation data against
// the pending round trip when the IdP included it.
func (v *Validator) checkSubjectConfirmation(el *etree.Element, pending *domain.PendingCorrelation) error {
	data := xmlsec.FindDescendant(el, "SubjectConfirmationData")
	if data == nil {
		return nil
	}

	if inResponseTo := data.SelectAttrValue("InResponseTo", ""); inResponseTo != "" && !pending.Matches(inResponseTo) {
		return domain.ReplayError(fmt.Sprintf("subject confirmation %q does not answer any outstanding request", inResponseTo))
	}
	if recipient := data.SelectAttrValue("Recipient", ""); recipient != "" && recipient != v.cfg.ServiceProvider.AssertionConsumerServiceURL {
		return domain.FormatError(fmt.Sprintf("subject confirmation recipient %q does not match this consumer", recipient), nil)
	}
	if raw := data.SelectAttrValue("NotOnOrAfter", ""); raw != "" {
		deadline, err := parseInstant(raw)
		if err != nil {
			return err
		}
		if !v.clock.Now().Add(-v.cfg.IdentityProvider.ClockSkew).Before(deadline) {
			return domain.TimeWindowError("subject confirmation has expired")
		}
	}
	return nil
}

// checkTimeWindow enforces the assertion's validity window with the
// configured clock skew. NotOnOrAfter is exclusive: an assertion presented
// at exactly its deadline is expired.
func (v *Validator) checkTimeWindow(a *domain.Assertion) error {
	now := v.clock.Now()
	skew := v.cfg.IdentityProvider.ClockSkew

	if !a.NotBefore.IsZero() && a.NotBefore.After(now.Add(skew)) {
		return domain.TimeWindowError(fmt.Sprintf("assertion is not valid before %s", a.NotBefore.Format(time.RFC3339)))
	}
	if !a.NotOnOrAfter.IsZero() && !now.Add(-skew).Before(a.NotOnOrAfter) {
		return domain.TimeWindowError(fmt.Sprintf("assertion expired at %s", a.NotOnOrAfter.Format(time.RFC3339)))
	}
	return nil
}

// checkIssuer enforces issuer equality and audience restriction.
func (v *Validator) checkIssuer(a *domain.Assertion) error {
	if a.Issuer != v.cfg.IdentityProvider.EntityID {
		return domain.IssuerError(fmt.Sprintf("assertion issuer %q is not the configured identity provider", a.Issuer))
	}
	if !a.RestrictedTo(v.cfg.ServiceProvider.EntityID) {
		return domain.IssuerError("assertion audience restriction does not admit this service provider")
	}
	return nil
}

// checkReplay consumes the assertion ID. The entry lives until the
// assertion's own deadline plus skew; afterwards the window check rejects
// the assertion anyway.
func (v *Validator) checkReplay(a *domain.Assertion) error {
	until := a.NotOnOrAfter
	if until.IsZero() {
		until = v.clock.Now().Add(v.cfg.IdentityProvider.ClockSkew)
	}
	if !v.idCache.MarkConsumed(a.ID, until.Add(v.cfg.IdentityProvider.ClockSkew)) {
		return domain.ReplayError(fmt.Sprintf("assertion %s was already consumed", a.ID))
	}
	return nil
}

// parseAssertion extracts the domain assertion from its XML form.
func parseAssertion(el *etree.Element) (*domain.Assertion, error) {
	if el.Tag != "Assertion" {
		return nil, domain.FormatError(fmt.Sprintf("expected an Assertion element, got %s", el.Tag), nil)
	}

	a := &domain.Assertion{
		ID:         el.SelectAttrValue("ID", ""),
		Issuer:     issuerOf(el),
		Attributes: make(map[string][]string),
	}
	if a.ID == "" {
		return nil, domain.FormatError("assertion has no ID", nil)
	}
	if a.Issuer == "" {
		return nil, domain.FormatError("assertion has no issuer", nil)
	}

	subject := xmlsec.FindChild(el, "Subject")
	if subject == nil {
		return nil, domain.FormatError("assertion has no subject", nil)
	}
	nameID := xmlsec.FindChild(subject, "NameID")
	if nameID == nil || nameID.Text() == "" {
		return nil, domain.FormatError("assertion subject has no NameID", nil)
	}
	a.Subject = nameID.Text()
	a.NameIDFormat = nameID.SelectAttrValue("Format", "")

	if conditions := xmlsec.FindChild(el, "Conditions"); conditions != nil {
		var err error
		if raw := conditions.SelectAttrValue("NotBefore", ""); raw != "" {
			if a.NotBefore, err = parseInstant(raw); err != nil {
				return nil, err
			}
		}
		if raw := conditions.SelectAttrValue("NotOnOrAfter", ""); raw != "" {
			if a.NotOnOrAfter, err = parseInstant(raw); err != nil {
				return nil, err
			}
		}
		for _, restriction := range conditions.ChildElements() {
			if restriction.Tag != "AudienceRestriction" {
				continue
			}
			for _, audience := range restriction.ChildElements() {
				if audience.Tag == "Audience" {
					a.Audiences = append(a.Audiences, audience.Text())
				}
			}
		}
	}

	if authnStatement := xmlsec.FindChild(el, "AuthnStatement"); authnStatement != nil {
		a.SessionIndex = authnStatement.SelectAttrValue("SessionIndex", "")
	}

	if attrStatement := xmlsec.FindChild(el, "AttributeStatement"); attrStatement != nil {
		for _, attr := range attrStatement.ChildElements() {
			if attr.Tag != "Attribute" {
				continue
			}
			name := attr.SelectAttrValue("Name", "")
			if name == "" {
				continue
			}
			for _, value := range attr.ChildElements() {
				if value.Tag == "AttributeValue" {
					a.Attributes[name] = append(a.Attributes[name], value.Text())
				}
			}
		}
	}

	return a, nil
}

// statusCodeOf extracts the top-level Status/StatusCode value.
func statusCodeOf(el *etree.Element) (string, error) {
	status := xmlsec.FindChild(el, "Status")
	if status == nil {
		return "", domain.FormatError(el.Tag+" carries no Status", nil)
	}
	code := xmlsec.FindChild(status, "StatusCode")
	if code == nil {
		return "", domain.FormatError(el.Tag+" carries no StatusCode", nil)
	}
	value := code.SelectAttrValue("Value", "")
	if value == "" {
		return "", domain.FormatError(el.Tag+" StatusCode has no Value", nil)
	}
	return value, nil
}

// nestedStatusCodeOf returns the second-level StatusCode value, if any.
func nestedStatusCodeOf(el *etree.Element) string {
	status := xmlsec.FindChild(el, "Status")
	if status == nil {
		return ""
	}
	code := xmlsec.FindChild(status, "StatusCode")
	if code == nil {
		return ""
	}
	nested := xmlsec.FindChild(code, "StatusCode")
	if nested == nil {
		return ""
	}
	return nested.SelectAttrValue("Value", "")
}

func issuerOf(el *etree.Element) string {
	issuer := xmlsec.FindChild(el, "Issuer")
	if issuer == nil {
		return ""
	}
	return issuer.Text()
}

// parseInstant parses a SAML UTC timestamp, with or without fractional
// seconds.
func parseInstant(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.FormatError(fmt.Sprintf("timestamp %q is not a valid instant", raw), err)
	}
	return t, nil
}
