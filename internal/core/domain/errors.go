package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	ErrCodeConfigInvalid    ErrorCode = "config_invalid"
	ErrCodeFormatInvalid    ErrorCode = "format_invalid"
	ErrCodeSignatureInvalid ErrorCode = "signature_invalid"
	ErrCodeReplay           ErrorCode = "replay"
	ErrCodeTimeWindow       ErrorCode = "time_window"
	ErrCodeIssuerMismatch   ErrorCode = "issuer_mismatch"
	ErrCodeStatusFailure    ErrorCode = "status_failure"
	ErrCodeTransportFailure ErrorCode = "transport_failure"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// AppError is a structured error with code, message, and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error

	// StatusCode carries the IdP-reported SAML status URI for
	// ErrCodeStatusFailure errors. Empty otherwise.
	StatusCode string

	// NoPassive is set on ErrCodeStatusFailure when the IdP answered a
	// passive AuthnRequest with urn:...:status:NoPassive. Hosts use this
	// to fall back to an interactive login instead of reporting a failure.
	NoPassive bool
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeFormatInvalid, ErrCodeSignatureInvalid, ErrCodeReplay,
		ErrCodeTimeWindow, ErrCodeIssuerMismatch:
		return http.StatusBadRequest
	case ErrCodeStatusFailure:
		return http.StatusUnauthorized
	case ErrCodeTransportFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Title returns a user-friendly title for this error code.
func (c ErrorCode) Title() string {
	switch c {
	case ErrCodeConfigInvalid:
		return "Configuration Error"
	case ErrCodeFormatInvalid:
		return "Malformed Message"
	case ErrCodeSignatureInvalid:
		return "Signature Invalid"
	case ErrCodeReplay:
		return "Replay Detected"
	case ErrCodeTimeWindow:
		return "Assertion Expired"
	case ErrCodeIssuerMismatch:
		return "Issuer Mismatch"
	case ErrCodeStatusFailure:
		return "Authentication Failed"
	case ErrCodeTransportFailure:
		return "Identity Provider Unreachable"
	default:
		return "Error"
	}
}

// ConfigError creates a configuration error.
func ConfigError(message string) *AppError {
	return &AppError{Code: ErrCodeConfigInvalid, Message: message}
}

// FormatError creates a malformed-message error with optional cause.
func FormatError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeFormatInvalid, Message: message, Cause: cause}
}

// SignatureError creates a signature validation error with optional cause.
func SignatureError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeSignatureInvalid, Message: message, Cause: cause}
}

// ReplayError creates a replay detection error.
func ReplayError(message string) *AppError {
	return &AppError{Code: ErrCodeReplay, Message: message}
}

// TimeWindowError creates a validity-window error.
func TimeWindowError(message string) *AppError {
	return &AppError{Code: ErrCodeTimeWindow, Message: message}
}

// IssuerError creates an issuer or audience mismatch error.
func IssuerError(message string) *AppError {
	return &AppError{Code: ErrCodeIssuerMismatch, Message: message}
}

// StatusError creates an error for an IdP-reported non-success status.
// The SAML status URI is preserved for diagnostics.
func StatusError(statusCode string) *AppError {
	return &AppError{
		Code:       ErrCodeStatusFailure,
		Message:    fmt.Sprintf("identity provider returned status %q", statusCode),
		StatusCode: statusCode,
	}
}

// NoPassiveError creates the distinct condition for a passive request the
// IdP could not satisfy without user interaction.
func NoPassiveError(statusCode string) *AppError {
	return &AppError{
		Code:       ErrCodeStatusFailure,
		Message:    "identity provider has no active session for a passive request",
		StatusCode: statusCode,
		NoPassive:  true,
	}
}

// TransportError creates an error for an artifact resolution transport failure.
func TransportError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeTransportFailure, Message: message, Cause: cause}
}
