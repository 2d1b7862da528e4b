package errs

import (
	"errors"
	"fmt"
	"time"
)

// AuthKind classifies authentication failures.
type AuthKind string

const (
	InvalidCredentials AuthKind = "invalid_credentials"
	MalformedToken     AuthKind = "malformed_token"
	TokenExpired       AuthKind = "token_expired"
	TokenRevoked       AuthKind = "token_revoked"
	InactiveAccount    AuthKind = "inactive_account"
)

// AuthError is an authentication failure of a specific kind.
// Err keeps the underlying cause (for logs only).
type AuthError struct {
	Kind AuthKind
	Err  error
}

// Auth builds an *AuthError of the given kind.
func Auth(kind AuthKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return "auth: " + string(e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is makes every AuthError match ErrUnauthorized and any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	var other *AuthError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// AuthKindOf returns the kind of the first AuthError in err's chain.
func AuthKindOf(err error) (AuthKind, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// RateLimitError reports throttling together with a retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRateLimited, e.Err}
	}
	return []error{ErrRateLimited}
}

// Validationf formats a validation error that wraps ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
