// Package revocation records revoked token ids in the shared store until they would have
// expired anyway.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/notekeeper/internal/kv"
)

const keyPrefix = "revoked:"

// Store tracks revoked token ids (jti).
type Store struct {
	kv kv.Store
}

// New creates a revocation store on top of a shared key-value store.
func New(s kv.Store) *Store {
	return &Store{kv: s}
}

// Key returns the store key for a token id.
func Key(jti string) string { return keyPrefix + jti }

// MarkRevoked records jti as revoked for ttl (the token's remaining lifetime). The write is
// set-if-absent, so exactly one of several concurrent callers gets created=true.
// A non-positive ttl means the token has already expired and nothing is written.
func (s *Store) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) (created bool, err error) {
	if ttl <= 0 {
		return false, nil
	}
	created, err = s.kv.SetNX(ctx, Key(jti), "1", ttl)
	if err != nil {
		return false, fmt.Errorf("mark revoked: %w", err)
	}
	return created, nil
}

// IsRevoked reports whether a revocation record exists for jti.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ok, err := s.kv.Exists(ctx, Key(jti))
	if err != nil {
		return false, fmt.Errorf("is revoked: %w", err)
	}
	return ok, nil
}
