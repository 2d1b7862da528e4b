package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Lockout is a Postgres-backed SigninGuard: after maxFails failures inside window the
// (email, ip) pair is blocked for blockFor.
type Lockout struct {
	db       pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time

	// Timeout bounds each guard call. Zero selects DefaultLockoutTimeout.
	Timeout time.Duration
}

// DefaultLockoutTimeout bounds a guard call when Lockout.Timeout is unset.
const DefaultLockoutTimeout = 3 * time.Second

var _ SigninGuard = (*Lockout)(nil)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewLockout constructs a sign-in lockout over a pool (or any pgx querier).
func NewLockout(db pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *Lockout {
	return &Lockout{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

func (l *Lockout) op(ctx context.Context) (context.Context, context.CancelFunc) {
	t := l.Timeout
	if t <= 0 {
		t = DefaultLockoutTimeout
	}
	return context.WithTimeout(ctx, t)
}

// HashIP returns a stable hash of a client address so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether a sign-in for (email, ip) may proceed.
func (l *Lockout) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	ctx, cancel := l.op(ctx)
	defer cancel()
	const q = `SELECT blocked_until FROM signin_attempts WHERE email=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, email, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if wait := blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success clears failures for (email, ip).
func (l *Lockout) Success(ctx context.Context, email string, ipHash []byte) error {
	ctx, cancel := l.op(ctx)
	defer cancel()
	const q = `DELETE FROM signin_attempts WHERE email=$1 AND ip_hash=$2`
	_, err := l.db.Exec(ctx, q, email, ipHash)
	return err
}

// Failure records a failed attempt. Failures older than the window restart the count.
func (l *Lockout) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	ctx, cancel := l.op(ctx)
	defer cancel()
	const q = `
INSERT INTO signin_attempts (email, ip_hash, fail_count, first_failed_at, blocked_until)
VALUES ($1, $2, 1, now(), 'epoch')
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - signin_attempts.first_failed_at > $3::interval THEN 1 ELSE signin_attempts.fail_count + 1 END,
  first_failed_at = CASE WHEN now() - signin_attempts.first_failed_at > $3::interval THEN now() ELSE signin_attempts.first_failed_at END
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, email, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE signin_attempts SET blocked_until=$3, fail_count=0, first_failed_at=now() WHERE email=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, upd, email, ipHash, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
