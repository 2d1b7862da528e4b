package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/notekeeper/internal/kv"
)

// Window is a fixed-window counter limiter. The count lives in the shared store under
// ratelimit:<scope>:<window-index>, so all instances share one budget per scope.
type Window struct {
	kv  kv.Store
	now func() time.Time
}

// NewWindow creates a fixed-window limiter.
func NewWindow(s kv.Store) *Window {
	return &Window{kv: s, now: time.Now}
}

var _ RateLimiter = (*Window)(nil)

// WindowKey returns the counter key for scope at instant t.
func WindowKey(scope string, window time.Duration, t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", scope, windowIndex(window, t))
}

func windowIndex(window time.Duration, t time.Time) int64 {
	return t.UnixNano() / int64(window)
}

// Check increments the window counter for scope and throttles once it exceeds limit.
// When the store is unreachable the request is throttled and the store error is returned
// alongside the decision.
func (w *Window) Check(ctx context.Context, scope string, limit int, window time.Duration) (Decision, error) {
	now := w.now()
	idx := windowIndex(window, now)
	untilEnd := time.Unix(0, (idx+1)*int64(window)).Sub(now)

	count, left, err := w.kv.IncrWindow(ctx, WindowKey(scope, window, now), window)
	if err != nil {
		return Decision{Allowed: false, RetryAfter: roundUp(untilEnd)}, fmt.Errorf("rate limit %s: %w", scope, err)
	}

	d := Decision{Count: count, Remaining: int64(limit) - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if count <= int64(limit) {
		d.Allowed = true
		return d, nil
	}
	if left <= 0 {
		left = untilEnd
	}
	d.RetryAfter = roundUp(left)
	return d, nil
}

// roundUp rounds to whole seconds, never below one; Retry-After is expressed in seconds.
func roundUp(d time.Duration) time.Duration {
	s := (d + time.Second - 1) / time.Second
	if s < 1 {
		s = 1
	}
	return s * time.Second
}
