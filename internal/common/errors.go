// Package common defines shared constants and sentinel errors used across
// CloudVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Token lifecycle errors. Expired and invalid are distinct on purpose:
	// clients surface different codes for each.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSecurityAlert signals refresh-token reuse. The whole token family
	// has been revoked and the caller must force re-authentication.
	ErrSecurityAlert = errors.New("refresh token reuse detected")

	// Storage errors.
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrExternalService = errors.New("external service failure")
)
