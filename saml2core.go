// Package saml2core implements the service-provider side of the SAML 2.0
// Web Browser SSO and Single Logout profiles: signed AuthnRequest and
// LogoutRequest construction, the HTTP-Redirect and HTTP-Artifact bindings,
// XML signature verification, assertion decryption and the response
// validation pipeline.
//
// Hosts build one Provider per SP/IdP pair and drive it from their HTTP
// handlers:
//
//	provider, err := saml2core.NewProvider(cfg, certs.NewFileProvider(idpPEM, spPEM, spKey), saml2core.Options{})
//	...
//	url, err := provider.InitiateSSO(store, "/app", "")
//	http.Redirect(w, r, url, http.StatusFound)
//
// Session management, metadata exchange and the HTML around login flows
// stay with the host.
package saml2core
