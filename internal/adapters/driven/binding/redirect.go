// Package binding implements the SAML 2.0 wire bindings this SP speaks:
// HTTP-Redirect (DEFLATE + Base64 in query parameters with a detached
// query-string signature) and HTTP-Artifact (opaque artifact resolved
// out-of-band over a SOAP POST).
package binding

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/philiph/saml2-core/internal/adapters/driven/xmlsec"
	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// Query parameter names defined by the SAML 2.0 bindings specification.
const (
	ParamSAMLRequest  = "SAMLRequest"
	ParamSAMLResponse = "SAMLResponse"
	ParamRelayState   = "RelayState"
	ParamSigAlg       = "SigAlg"
	ParamSignature    = "Signature"
	ParamSAMLArt      = "SAMLart"
)

// maxInflatedSize caps decompression of inbound payloads. SAML messages
// are a few kilobytes; anything near this limit is garbage or an attack.
const maxInflatedSize = 10 << 20

// Result is what a binding hands back for an inbound envelope. Outcome
// drives dispatch: NotApplicable envelopes belong to another binding,
// Rejected ones carry Err, Accepted ones carry the decoded message.
type Result struct {
	Outcome ports.BindingOutcome

	// Doc is the whitespace-preserving document containing Message.
	Doc *xmlsec.Document

	// Message is the protocol message element (Response, LogoutRequest,
	// LogoutResponse).
	Message *etree.Element

	// RelayState is the round-tripped opaque state, if any.
	RelayState string

	// Err is set when Outcome is BindingRejected.
	Err error
}

func rejected(err error) Result {
	return Result{Outcome: ports.BindingRejected, Err: err}
}

func notApplicable() Result {
	return Result{Outcome: ports.BindingNotApplicable}
}

// RedirectBinding encodes outbound messages into signed redirect URLs and
// decodes/verifies inbound redirect envelopes.
type RedirectBinding struct {
	signer     *xmlsec.QuerySigner
	verifyKeys []interface{}
	logger     *zap.Logger
}

// NewRedirectBinding creates the binding. signer signs outbound query
// strings and may be nil for deployments whose IdP accepts unsigned
// requests; verifyKeys are the IdP public keys inbound signatures are
// checked against, more than one during certificate rollover. The logger is
// optional.
func NewRedirectBinding(signer *xmlsec.QuerySigner, verifyKeys []interface{}, logger *zap.Logger) *RedirectBinding {
	return &RedirectBinding{signer: signer, verifyKeys: verifyKeys, logger: logger}
}

// Encode serializes the message document into a redirect URL on
// destination: serialize, raw-DEFLATE, Base64, URL-encode under param,
// append RelayState, then sign the exact byte sequence
// "<param>=...&RelayState=...&SigAlg=..." and append the signature.
func (b *RedirectBinding) Encode(doc *etree.Document, param, destination, relayState string) (string, error) {
	serialized, err := doc.WriteToBytes()
	if err != nil {
		return "", domain.FormatError("serialize message", err)
	}

	deflated, err := deflate(serialized)
	if err != nil {
		return "", domain.FormatError("compress message", err)
	}
	encoded := base64.StdEncoding.EncodeToString(deflated)

	var query strings.Builder
	query.WriteString(param)
	query.WriteString("=")
	query.WriteString(url.QueryEscape(encoded))
	if relayState != "" {
		query.WriteString("&" + ParamRelayState + "=")
		query.WriteString(url.QueryEscape(relayState))
	}

	if b.signer != nil {
		query.WriteString("&" + ParamSigAlg + "=")
		query.WriteString(url.QueryEscape(b.signer.MethodURI()))

		signature, err := b.signer.Sign([]byte(query.String()))
		if err != nil {
			return "", err
		}
		query.WriteString("&" + ParamSignature + "=")
		query.WriteString(url.QueryEscape(base64.StdEncoding.EncodeToString(signature)))
	}

	joiner := "?"
	if strings.Contains(destination, "?") {
		joiner = "&"
	}
	return destination + joiner + query.String(), nil
}

// Decode inspects an inbound request for a redirect envelope under param
// (SAMLRequest or SAMLResponse). When expectedPath is non-empty the request
// path must match it; otherwise the binding is inert. The envelope's
// query-string signature is recomputed over the received parameter bytes
// and verified before the payload is inflated.
func (b *RedirectBinding) Decode(r *http.Request, param, expectedPath string) Result {
	if expectedPath != "" && r.URL.Path != expectedPath {
		return notApplicable()
	}

	rawQuery := r.URL.RawQuery
	rawPayload, ok := rawQueryParam(rawQuery, param)
	if !ok {
		return notApplicable()
	}

	if err := b.verifyQuerySignature(rawQuery, param, rawPayload); err != nil {
		return rejected(err)
	}

	payload, err := url.QueryUnescape(rawPayload)
	if err != nil {
		return rejected(domain.FormatError(param+" parameter is not URL-encoded", err))
	}
	deflated, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return rejected(domain.FormatError(param+" parameter is not valid base64", err))
	}
	serialized, err := inflate(deflated)
	if err != nil {
		return rejected(domain.FormatError(param+" payload does not inflate", err))
	}

	doc, err := xmlsec.Parse(serialized)
	if err != nil {
		return rejected(err)
	}

	if b.logger != nil {
		b.logger.Debug("redirect envelope decoded",
			zap.String("param", param),
			zap.String("message", doc.Root().Tag),
		)
	}

	return Result{
		Outcome:    ports.BindingAccepted,
		Doc:        doc,
		Message:    doc.Root(),
		RelayState: r.URL.Query().Get(ParamRelayState),
	}
}

// verifyQuerySignature rebuilds the canonical signed byte sequence from the
// raw (still URL-encoded) query parameters and checks the Signature
// parameter against the IdP key. The canonical order is fixed by the
// binding spec: payload, RelayState (when present), SigAlg.
func (b *RedirectBinding) verifyQuerySignature(rawQuery, param, rawPayload string) error {
	rawSig, hasSig := rawQueryParam(rawQuery, ParamSignature)
	rawAlg, hasAlg := rawQueryParam(rawQuery, ParamSigAlg)
	if !hasSig || !hasAlg {
		return domain.SignatureError("redirect envelope is not signed", nil)
	}

	var signed strings.Builder
	signed.WriteString(param + "=" + rawPayload)
	if rawRelay, ok := rawQueryParam(rawQuery, ParamRelayState); ok {
		signed.WriteString("&" + ParamRelayState + "=" + rawRelay)
	}
	signed.WriteString("&" + ParamSigAlg + "=" + rawAlg)

	sigAlg, err := url.QueryUnescape(rawAlg)
	if err != nil {
		return domain.FormatError("SigAlg parameter is not URL-encoded", err)
	}
	encodedSig, err := url.QueryUnescape(rawSig)
	if err != nil {
		return domain.FormatError("Signature parameter is not URL-encoded", err)
	}
	signature, err := base64.StdEncoding.DecodeString(encodedSig)
	if err != nil {
		return domain.SignatureError("Signature parameter is not valid base64", err)
	}

	var lastErr error
	for _, key := range b.verifyKeys {
		verifier, err := xmlsec.NewQueryVerifier(key, sigAlg)
		if err != nil {
			// A rollover list may mix key types; this key cannot carry
			// sigAlg but a later one still can.
			lastErr = err
			continue
		}
		if lastErr = verifier.Verify([]byte(signed.String()), signature); lastErr == nil {
			return nil
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return domain.SignatureError("no verification keys configured", nil)
}

// rawQueryParam extracts a parameter's value from the raw query string
// without decoding it. Signatures cover the bytes as sent, so decoding and
// re-encoding could change them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, pair := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(pair, key+"=") {
			return pair[len(key)+1:], true
		}
	}
	return "", false
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflatedSize {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", maxInflatedSize)
	}
	return out, nil
}
