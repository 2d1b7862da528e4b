// Package limiter throttles callers: fixed-window request budgets in the shared store and a
// Postgres-backed sign-in lockout.
package limiter

import (
	"context"
	"time"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Count      int64         // requests seen in the current window, including this one
	Remaining  int64         // requests left in the current window
	RetryAfter time.Duration // set when Allowed is false
}

// RateLimiter admits or throttles requests per scope.
type RateLimiter interface {
	// Check counts one request against scope. It never admits a request it could not count.
	Check(ctx context.Context, scope string, limit int, window time.Duration) (Decision, error)
}

// SigninGuard tracks failed sign-ins per (email, client) and locks the pair out temporarily.
type SigninGuard interface {
	// Allow reports whether a sign-in may proceed and, if not, when to retry.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success clears the failure history.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether the pair is now locked.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}
