package saml2core

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/philiph/saml2-core/internal/adapters/driven/binding"
	"github.com/philiph/saml2-core/internal/adapters/driven/message"
	"github.com/philiph/saml2-core/internal/adapters/driven/metrics"
	"github.com/philiph/saml2-core/internal/adapters/driven/xmlsec"
	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// Binding labels reported through metrics and SSOResult.
const (
	BindingRedirect = "redirect"
	BindingArtifact = "artifact"
)

// Options carries the optional collaborators a Provider can be built with.
// The zero value is valid: no logging, no metrics, real clock, default HTTP
// client.
type Options struct {
	// Logger receives structured protocol logs. Nil disables logging.
	Logger *zap.Logger

	// Metrics records round-trip outcomes. Nil falls back to a no-op.
	Metrics ports.MetricsRecorder

	// Clock is injectable for tests.
	Clock clockwork.Clock

	// HTTPClient performs ArtifactResolve calls.
	HTTPClient *http.Client
}

// Provider is the service-provider protocol engine: it initiates SSO and
// SLO round trips and processes the IdP's answers. One Provider serves one
// SP/IdP pair and is safe for concurrent use.
type Provider struct {
	cfg       *domain.ResolvedConfig
	factory   *message.Factory
	redirect  *binding.RedirectBinding
	artifact  *binding.ArtifactBinding
	validator *Validator
	metrics   ports.MetricsRecorder
	logger    *zap.Logger
	clock     clockwork.Clock
}

// SSOResult is the outcome of a validated SSO response.
type SSOResult struct {
	// Assertion is the validated identity statement.
	Assertion *domain.Assertion

	// ReturnURL is the target saved when the round trip was initiated.
	ReturnURL string

	// RelayState is the opaque state echoed by the IdP, if any.
	RelayState string

	// Binding names the wire binding the response arrived on.
	Binding string
}

// NewProvider builds a provider from the raw configuration and certificate
// material. Certificates are loaded once here; a Provider never goes back
// to the CertificateProvider.
func NewProvider(cfg domain.Config, certProvider ports.CertificateProvider, opts Options) (*Provider, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	pair, err := certProvider.GetCertificates()
	if err != nil {
		return nil, err
	}
	if len(pair.IdentityProviderCerts) == 0 {
		return nil, domain.ConfigError("no identity provider certificates configured")
	}
	if pair.ServiceProviderKey == nil {
		return nil, domain.ConfigError("no service provider key configured")
	}

	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopMetricsRecorder()
	}

	alg, err := xmlsec.LookupAlgorithm(resolved.IdentityProvider.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	querySigner, err := xmlsec.NewQuerySigner(pair.ServiceProviderKey, alg)
	if err != nil {
		return nil, err
	}

	verifyKeys := make([]interface{}, 0, len(pair.IdentityProviderCerts))
	for _, cert := range pair.IdentityProviderCerts {
		verifyKeys = append(verifyKeys, cert.PublicKey)
	}

	var artifactBinding *binding.ArtifactBinding
	if resolved.IdentityProvider.ArtifactResolveServiceURL != "" {
		xmlSigner, err := xmlsec.NewSigner(pair.ServiceProviderKey, pair.ServiceProviderCert, alg)
		if err != nil {
			return nil, err
		}
		artifactBinding = binding.NewArtifactBinding(resolved, xmlSigner, opts.HTTPClient, opts.Clock, opts.Metrics, opts.Logger)
	}

	verifier := xmlsec.NewVerifier(pair.IdentityProviderCerts, opts.Logger)

	return &Provider{
		cfg:       resolved,
		factory:   message.NewFactory(resolved, opts.Clock),
		redirect:  binding.NewRedirectBinding(querySigner, verifyKeys, opts.Logger),
		artifact:  artifactBinding,
		validator: NewValidator(resolved, verifier, pair.ServiceProviderKey, NewMemoryIDCache(opts.Clock), opts.Clock, opts.Logger),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		clock:     opts.Clock,
	}, nil
}

// InitiateSSO builds a signed AuthnRequest, saves the pending round trip in
// the correlation store and returns the redirect URL to send the browser
// to. returnURL is where the host wants the browser back after login;
// relayState is echoed by the IdP as-is.
func (p *Provider) InitiateSSO(store ports.CorrelationStore, returnURL, relayState string) (string, error) {
	requestID := domain.NewMessageID()

	msg, doc, err := p.factory.AuthnRequest(requestID)
	if err != nil {
		return "", err
	}

	redirectURL, err := p.redirect.Encode(doc, binding.ParamSAMLRequest, msg.Destination, relayState)
	if err != nil {
		return "", err
	}

	if err := store.Save(&domain.PendingCorrelation{
		RequestID: requestID,
		ReturnURL: returnURL,
		IssuedAt:  p.clock.Now(),
	}); err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("sso initiated", zap.String("request_id", requestID))
	}
	return redirectURL, nil
}

// ReceiveSSOResponse processes an inbound SSO response at the assertion
// consumer endpoint, trying the redirect binding first and the artifact
// binding second. The pending correlation is removed once validation
// reaches a verdict; it stays in place when the artifact round trip fails
// in transport, so the host may retry.
func (p *Provider) ReceiveSSOResponse(ctx context.Context, r *http.Request, store ports.CorrelationStore) (*SSOResult, error) {
	result, bindingName := p.decodeSSOEnvelope(ctx, r)

	switch result.Outcome {
	case ports.BindingNotApplicable:
		err := domain.FormatError("request carries no SAML response envelope", nil)
		p.metrics.RecordSSOResult(bindingName, errorCodeOf(err))
		return nil, err
	case ports.BindingRejected:
		p.metrics.RecordSSOResult(bindingName, errorCodeOf(result.Err))
		if !isTransportFailure(result.Err) {
			// A rejected envelope still consumes the round trip.
			_ = store.Remove()
		}
		return nil, result.Err
	}

	pending, err := store.Load()
	if err != nil {
		err := domain.ReplayError("no outstanding authentication request for this session")
		p.metrics.RecordSSOResult(bindingName, errorCodeOf(err))
		return nil, err
	}

	assertion, err := p.validator.ValidateSSOResponse(result.Doc, result.Message, pending)
	// The round trip is over either way; a failed response cannot be retried.
	_ = store.Remove()
	p.metrics.RecordSSOResult(bindingName, errorCodeOf(err))
	if err != nil {
		return nil, err
	}

	return &SSOResult{
		Assertion:  assertion,
		ReturnURL:  pending.ReturnURL,
		RelayState: result.RelayState,
		Binding:    bindingName,
	}, nil
}

// InitiateSLO builds a signed LogoutRequest for the current principal and
// returns the redirect URL. nameID, nameIDFormat and sessionIndex come from
// the assertion the login produced.
func (p *Provider) InitiateSLO(store ports.CorrelationStore, nameID, nameIDFormat, sessionIndex, returnURL string) (string, error) {
	if p.cfg.IdentityProvider.SingleLogoutServiceURL == "" {
		return "", domain.ConfigError("identity provider has no single logout URL")
	}

	requestID := domain.NewMessageID()
	msg, doc, err := p.factory.LogoutRequest(requestID, nameID, nameIDFormat, sessionIndex)
	if err != nil {
		return "", err
	}

	redirectURL, err := p.redirect.Encode(doc, binding.ParamSAMLRequest, msg.Destination, "")
	if err != nil {
		return "", err
	}

	if err := store.Save(&domain.PendingCorrelation{
		RequestID: requestID,
		ReturnURL: returnURL,
		IssuedAt:  p.clock.Now(),
	}); err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("slo initiated", zap.String("request_id", requestID))
	}
	return redirectURL, nil
}

// ReceiveIdPLogoutRequest processes an IdP-initiated logout request and
// returns the validated demand plus the redirect URL carrying the signed
// LogoutResponse back to the IdP. The host terminates its local session for
// demand.NameID between receiving the demand and issuing the redirect.
func (p *Provider) ReceiveIdPLogoutRequest(r *http.Request) (*LogoutDemand, string, error) {
	result := p.redirect.Decode(r, binding.ParamSAMLRequest, "")
	switch result.Outcome {
	case ports.BindingNotApplicable:
		err := domain.FormatError("request carries no SAML logout request envelope", nil)
		p.metrics.RecordSLOResult("idp", errorCodeOf(err))
		return nil, "", err
	case ports.BindingRejected:
		p.metrics.RecordSLOResult("idp", errorCodeOf(result.Err))
		return nil, "", result.Err
	}

	demand, err := p.validator.ValidateLogoutRequest(result.Doc, result.Message)
	if err != nil {
		p.metrics.RecordSLOResult("idp", errorCodeOf(err))
		return nil, "", err
	}

	_, doc, err := p.factory.LogoutResponse(domain.NewMessageID(), demand.RequestID, domain.StatusSuccess)
	if err != nil {
		p.metrics.RecordSLOResult("idp", errorCodeOf(err))
		return nil, "", err
	}

	redirectURL, err := p.redirect.Encode(doc, binding.ParamSAMLResponse, p.cfg.IdentityProvider.SingleLogoutServiceURL, result.RelayState)
	if err != nil {
		p.metrics.RecordSLOResult("idp", errorCodeOf(err))
		return nil, "", err
	}

	p.metrics.RecordSLOResult("idp", "")
	if p.logger != nil {
		p.logger.Info("idp logout processed", zap.String("request_id", demand.RequestID))
	}
	return demand, redirectURL, nil
}

// ReceiveSPLogoutResponse processes the IdP's answer to a logout this SP
// initiated and returns the saved return URL.
func (p *Provider) ReceiveSPLogoutResponse(r *http.Request, store ports.CorrelationStore) (string, error) {
	result := p.redirect.Decode(r, binding.ParamSAMLResponse, "")
	switch result.Outcome {
	case ports.BindingNotApplicable:
		err := domain.FormatError("request carries no SAML logout response envelope", nil)
		p.metrics.RecordSLOResult("sp", errorCodeOf(err))
		return "", err
	case ports.BindingRejected:
		p.metrics.RecordSLOResult("sp", errorCodeOf(result.Err))
		_ = store.Remove()
		return "", result.Err
	}

	pending, err := store.Load()
	if err != nil {
		err := domain.ReplayError("no outstanding logout request for this session")
		p.metrics.RecordSLOResult("sp", errorCodeOf(err))
		return "", err
	}

	err = p.validator.ValidateLogoutResponse(result.Doc, result.Message, pending)
	_ = store.Remove()
	p.metrics.RecordSLOResult("sp", errorCodeOf(err))
	if err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("slo completed", zap.String("request_id", pending.RequestID))
	}
	return pending.ReturnURL, nil
}

// decodeSSOEnvelope tries the response bindings in order. The redirect
// binding is inspected first because it needs no network round trip; the
// artifact binding only runs when a SAMLart parameter is present.
func (p *Provider) decodeSSOEnvelope(ctx context.Context, r *http.Request) (binding.Result, string) {
	result := p.redirect.Decode(r, binding.ParamSAMLResponse, "")
	if result.Outcome != ports.BindingNotApplicable {
		return result, BindingRedirect
	}
	if p.artifact != nil {
		result = p.artifact.Resolve(ctx, r, "")
		if result.Outcome != ports.BindingNotApplicable {
			return result, BindingArtifact
		}
	}
	return result, BindingRedirect
}

func errorCodeOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*domain.AppError); ok {
		return appErr.Code.String()
	}
	return "internal"
}

func isTransportFailure(err error) bool {
	appErr, ok := err.(*domain.AppError)
	return ok && appErr.Code == domain.ErrCodeTransportFailure
}
