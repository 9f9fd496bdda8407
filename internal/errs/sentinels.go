// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/vault layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad credentials or challenge).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAuthenticated indicates the vault is locked: no session or no master key.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDecryptionFailed indicates the vault blob could not be opened. It never
	// says whether the key was wrong or the data corrupted.
	ErrDecryptionFailed = errors.New("failed to decrypt vault data")

	// ErrRemoteUnavailable indicates a retryable failure of the remote store.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrRateLimited indicates temporary lock due to too many failed attempts.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrTotpNotEnrolled indicates the account has no confirmed second factor.
	ErrTotpNotEnrolled = errors.New("totp not enrolled")

	// ErrTotpAlreadyEnabled indicates enrollment was attempted on an account with a confirmed second factor.
	ErrTotpAlreadyEnabled = errors.New("totp already enabled")

	// ErrInvalidState indicates a session transition not allowed from the current state.
	ErrInvalidState = errors.New("invalid session state")
)
