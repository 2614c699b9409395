package saml2core

import (
	"github.com/philiph/saml2-core/internal/core/domain"
)

// Re-export error types from the domain package so hosts never import
// internal paths.
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError

// Re-export error code constants
const (
	ErrCodeConfigInvalid    = domain.ErrCodeConfigInvalid
	ErrCodeFormatInvalid    = domain.ErrCodeFormatInvalid
	ErrCodeSignatureInvalid = domain.ErrCodeSignatureInvalid
	ErrCodeReplay           = domain.ErrCodeReplay
	ErrCodeTimeWindow       = domain.ErrCodeTimeWindow
	ErrCodeIssuerMismatch   = domain.ErrCodeIssuerMismatch
	ErrCodeStatusFailure    = domain.ErrCodeStatusFailure
	ErrCodeTransportFailure = domain.ErrCodeTransportFailure
)

// Re-export error constructors
var (
	ConfigError     = domain.ConfigError
	FormatError     = domain.FormatError
	SignatureError  = domain.SignatureError
	ReplayError     = domain.ReplayError
	TimeWindowError = domain.TimeWindowError
	IssuerError     = domain.IssuerError
	StatusError     = domain.StatusError
	NoPassiveError  = domain.NoPassiveError
	TransportError  = domain.TransportError
)

// IsNoPassive reports whether err is the distinct condition for a passive
// request the IdP could not satisfy without user interaction.
func IsNoPassive(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.NoPassive
}
