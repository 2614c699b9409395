package domain

import (
	"net/url"
	"time"
)

// Default knobs applied by Resolve when the raw configuration leaves them
// unset.
const (
	DefaultSignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	DefaultClockSkew          = 90 * time.Second
	DefaultResolveTimeout     = 15 * time.Second
)

// ServiceProviderConfig describes this deployment's SP role.
type ServiceProviderConfig struct {
	// EntityID is the SP entity identifier, usually a URL.
	EntityID string

	// AssertionConsumerServiceURL receives SSO responses from the IdP.
	AssertionConsumerServiceURL string

	// SingleLogoutServiceURL receives logout requests and responses.
	SingleLogoutServiceURL string

	// OmitAssertionSignatureCheck skips assertion signature verification.
	// Only for IdPs that sign the enclosing response instead; leave false
	// unless the deployment demands it.
	OmitAssertionSignatureCheck bool
}

// IdentityProviderConfig describes the external IdP this SP talks to.
type IdentityProviderConfig struct {
	// EntityID is the IdP entity identifier.
	EntityID string

	// SingleSignOnServiceURL is the IdP endpoint AuthnRequests go to.
	SingleSignOnServiceURL string

	// SingleLogoutServiceURL is the IdP endpoint LogoutRequests go to.
	SingleLogoutServiceURL string

	// ArtifactResolveServiceURL is the IdP's SOAP artifact resolution
	// endpoint. Required only when the artifact binding is used.
	ArtifactResolveServiceURL string

	// SignatureAlgorithm is the XML-DSig algorithm URI (or short name such
	// as "SHA256") used for outbound signatures. Defaults to RSA-SHA256.
	SignatureAlgorithm string

	// ForceAuthn asks the IdP to re-authenticate even with a live session.
	ForceAuthn bool

	// IsPassive forbids the IdP from interacting with the user.
	IsPassive bool

	// NameIDPolicyFormat is the requested NameID format URI. Empty omits
	// the NameIDPolicy element.
	NameIDPolicyFormat string

	// AllowCreate permits the IdP to create a new identifier.
	AllowCreate bool

	// RequestedAuthnContexts lists authn context class URIs to request.
	RequestedAuthnContexts []string

	// AuthnContextComparison is exact, minimum, maximum, better or empty.
	AuthnContextComparison string

	// ClockSkew is the tolerance applied to assertion validity windows.
	ClockSkew time.Duration

	// ResolveTimeout bounds the ArtifactResolve round trip.
	ResolveTimeout time.Duration
}

// Config is the raw per-deployment configuration as the host supplies it.
type Config struct {
	ServiceProvider  ServiceProviderConfig
	IdentityProvider IdentityProviderConfig
}

// ResolvedConfig is a validated configuration with all defaults applied.
// It is produced once at startup and treated as read-only afterwards;
// nothing in this module mutates it.
type ResolvedConfig struct {
	ServiceProvider  ServiceProviderConfig
	IdentityProvider IdentityProviderConfig
}

// Resolve validates the raw configuration and returns an immutable resolved
// copy. It replaces in-place defaulting: a Config is never patched after
// construction, and every consumer sees the same resolved values.
func (c Config) Resolve() (*ResolvedConfig, error) {
	if c.ServiceProvider.EntityID == "" {
		return nil, ConfigError("service provider entity ID is required")
	}
	if err := requireURL("service provider assertion consumer URL", c.ServiceProvider.AssertionConsumerServiceURL); err != nil {
		return nil, err
	}
	if c.IdentityProvider.EntityID == "" {
		return nil, ConfigError("identity provider entity ID is required")
	}
	if err := requireURL("identity provider single sign-on URL", c.IdentityProvider.SingleSignOnServiceURL); err != nil {
		return nil, err
	}
	if u := c.IdentityProvider.SingleLogoutServiceURL; u != "" {
		if err := requireURL("identity provider single logout URL", u); err != nil {
			return nil, err
		}
	}
	if u := c.IdentityProvider.ArtifactResolveServiceURL; u != "" {
		if err := requireURL("identity provider artifact resolve URL", u); err != nil {
			return nil, err
		}
	}
	if err := ValidateAuthnContextComparison(c.IdentityProvider.AuthnContextComparison); err != nil {
		return nil, err
	}

	resolved := &ResolvedConfig{
		ServiceProvider:  c.ServiceProvider,
		IdentityProvider: c.IdentityProvider,
	}
	if resolved.IdentityProvider.SignatureAlgorithm == "" {
		resolved.IdentityProvider.SignatureAlgorithm = DefaultSignatureAlgorithm
	}
	if resolved.IdentityProvider.ClockSkew <= 0 {
		resolved.IdentityProvider.ClockSkew = DefaultClockSkew
	}
	if resolved.IdentityProvider.ResolveTimeout <= 0 {
		resolved.IdentityProvider.ResolveTimeout = DefaultResolveTimeout
	}
	return resolved, nil
}

func requireURL(name, raw string) error {
	if raw == "" {
		return ConfigError(name + " is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ConfigError(name + " is not an absolute URL")
	}
	return nil
}
