package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrWrongOldPassword   = errors.New("current password does not match")

	// Access token errors, ordered the way the validator checks them
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenWrongIssuer  = errors.New("token issuer or audience mismatch")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenRevoked      = errors.New("token revoked")

	// Refresh token errors
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshInactive = errors.New("refresh token inactive")
	ErrReuseDetected   = errors.New("refresh token reuse detected")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable wraps persistence failures that survived the retry
	// budget. Handlers map it to 503.
	ErrStoreUnavailable = errors.New("store unavailable")
)
