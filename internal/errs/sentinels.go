// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist for the current owner.
	// A row owned by someone else is reported the same way.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication. Every *AuthError matches it via errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken, category name reused).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrProtected indicates an attempt to delete or rename the owner's default category.
	ErrProtected = errors.New("protected")

	// ErrStoreUnavailable indicates the shared key-value store could not be reached in time.
	// It is never returned to HTTP clients as is.
	ErrStoreUnavailable = errors.New("store unavailable")
)
