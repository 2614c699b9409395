package binding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/philiph/saml2-core/internal/adapters/driven/message"
	"github.com/philiph/saml2-core/internal/adapters/driven/metrics"
	"github.com/philiph/saml2-core/internal/adapters/driven/xmlsec"
	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// maxResolveResponseSize caps the ArtifactResponse body read from the IdP.
const maxResolveResponseSize = 10 << 20

// ArtifactBinding carries SAML messages by reference: the browser transports
// a 44-byte artifact, and the actual message is fetched from the IdP's
// artifact resolution service over a signed SOAP POST.
type ArtifactBinding struct {
	cfg      *domain.ResolvedConfig
	signer   *xmlsec.Signer
	client   *http.Client
	clock    clockwork.Clock
	recorder ports.MetricsRecorder
	logger   *zap.Logger
}

// NewArtifactBinding creates the binding. The signer signs ArtifactResolve
// requests with the SP key. A nil client falls back to a default client;
// the per-call timeout comes from the resolved configuration either way. A
// nil recorder disables resolve metrics.
func NewArtifactBinding(cfg *domain.ResolvedConfig, signer *xmlsec.Signer, client *http.Client, clock clockwork.Clock, recorder ports.MetricsRecorder, logger *zap.Logger) *ArtifactBinding {
	if client == nil {
		client = &http.Client{}
	}
	if recorder == nil {
		recorder = metrics.NewNoopMetricsRecorder()
	}
	return &ArtifactBinding{cfg: cfg, signer: signer, client: client, clock: clock, recorder: recorder, logger: logger}
}

// BuildRedirectURL creates a fresh single-use artifact and the redirect URL
// carrying it to the IdP's single sign-on endpoint.
func (b *ArtifactBinding) BuildRedirectURL(relayState string) (string, *domain.Artifact, error) {
	artifact, err := domain.NewArtifact(b.cfg.ServiceProvider.EntityID, 0)
	if err != nil {
		return "", nil, domain.FormatError("build artifact", err)
	}

	query := url.Values{}
	query.Set(ParamSAMLArt, artifact.Encode())
	if relayState != "" {
		query.Set(ParamRelayState, relayState)
	}

	destination := b.cfg.IdentityProvider.SingleSignOnServiceURL
	joiner := "?"
	if strings.Contains(destination, "?") {
		joiner = "&"
	}
	return destination + joiner + query.Encode(), artifact, nil
}

// Resolve inspects an inbound request for a SAMLart envelope and, when
// present, performs the ArtifactResolve round trip. The round trip is
// bounded by the configured resolve timeout and never retried: resolution
// is single-use at the IdP, and a blind retry could consume someone else's
// artifact or double-resolve ours.
func (b *ArtifactBinding) Resolve(ctx context.Context, r *http.Request, expectedPath string) Result {
	if expectedPath != "" && r.URL.Path != expectedPath {
		return notApplicable()
	}
	encodedArtifact := r.URL.Query().Get(ParamSAMLArt)
	if encodedArtifact == "" {
		return notApplicable()
	}

	if _, err := domain.DecodeArtifact(encodedArtifact); err != nil {
		return rejected(err)
	}

	responseDoc, responseEl, err := b.resolveArtifact(ctx, encodedArtifact)
	if err != nil {
		return rejected(err)
	}
	if responseEl == nil {
		return rejected(domain.FormatError("artifact response carries no protocol message", nil))
	}

	return Result{
		Outcome:    ports.BindingAccepted,
		Doc:        responseDoc,
		Message:    responseEl,
		RelayState: r.URL.Query().Get(ParamRelayState),
	}
}

func (b *ArtifactBinding) resolveArtifact(parent context.Context, encodedArtifact string) (*xmlsec.Document, *etree.Element, error) {
	endpoint := b.cfg.IdentityProvider.ArtifactResolveServiceURL
	if endpoint == "" {
		return nil, nil, domain.ConfigError("identity provider has no artifact resolve service URL")
	}

	envelope, err := b.buildResolveEnvelope(encodedArtifact)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(parent, b.cfg.IdentityProvider.ResolveTimeout)
	defer cancel()

	start := b.clock.Now()
	body, err := b.postEnvelope(ctx, endpoint, envelope)
	b.recorder.RecordArtifactResolve(err == nil, b.clock.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}

	if b.logger != nil {
		b.logger.Debug("artifact resolved", zap.String("endpoint", endpoint), zap.Int("bytes", len(body)))
	}

	return b.parseResolveResponse(body)
}

// postEnvelope performs the SOAP POST and returns the raw reply body. Any
// failure here is a transport failure: the artifact was not consumed at the
// IdP as far as this SP can tell.
func (b *ArtifactBinding) postEnvelope(ctx context.Context, endpoint string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, domain.TransportError("build artifact resolve request", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://www.oasis-open.org/committees/security")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("artifact resolve call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.TransportError(fmt.Sprintf("artifact resolve returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResolveResponseSize))
	if err != nil {
		return nil, domain.TransportError("read artifact resolve response", err)
	}
	return body, nil
}

// buildResolveEnvelope constructs the signed ArtifactResolve message inside
// a SOAP envelope.
func (b *ArtifactBinding) buildResolveEnvelope(encodedArtifact string) ([]byte, error) {
	resolveID := domain.NewMessageID()

	doc := etree.NewDocument()
	envelope := doc.CreateElement("SOAP-ENV:Envelope")
	envelope.CreateAttr("xmlns:SOAP-ENV", domain.SOAPNamespace)
	body := envelope.CreateElement("SOAP-ENV:Body")

	resolve := body.CreateElement("samlp:ArtifactResolve")
	resolve.CreateAttr("xmlns:samlp", domain.ProtocolNamespace)
	resolve.CreateAttr("xmlns:saml", domain.AssertionNamespace)
	resolve.CreateAttr("ID", resolveID)
	resolve.CreateAttr("Version", domain.SAMLVersion)
	resolve.CreateAttr("IssueInstant", message.FormatIssueInstant(b.clock.Now()))
	resolve.CreateAttr("Destination", b.cfg.IdentityProvider.ArtifactResolveServiceURL)
	resolve.CreateElement("saml:Issuer").SetText(b.cfg.ServiceProvider.EntityID)
	resolve.CreateElement("samlp:Artifact").SetText(encodedArtifact)

	if b.signer != nil {
		wrapped := xmlsec.Wrap(doc, true)
		if err := b.signer.SignElement(wrapped, resolveID); err != nil {
			return nil, err
		}
	}

	return doc.WriteToBytes()
}

// parseResolveResponse unwraps the SOAP envelope, checks the
// ArtifactResponse status and extracts the inner Response element. A
// payload that is not a Response yields no message and no error; callers
// treat the empty result as a rejection.
func (b *ArtifactBinding) parseResolveResponse(body []byte) (*xmlsec.Document, *etree.Element, error) {
	doc, err := xmlsec.Parse(body)
	if err != nil {
		return nil, nil, err
	}

	artifactResponse := xmlsec.FindDescendant(doc.Root(), "ArtifactResponse")
	if artifactResponse == nil {
		return nil, nil, domain.FormatError("artifact resolve reply carries no ArtifactResponse", nil)
	}

	statusCode, err := statusCodeOf(artifactResponse)
	if err != nil {
		return nil, nil, err
	}
	if statusCode != domain.StatusSuccess {
		return nil, nil, domain.StatusError(statusCode)
	}

	payload := xmlsec.FindChild(artifactResponse, "Response")
	if payload == nil {
		return nil, nil, nil
	}
	return doc, payload, nil
}

// statusCodeOf extracts the top-level Status/StatusCode value of a
// protocol message element.
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
