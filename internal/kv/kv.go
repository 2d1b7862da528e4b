// Package kv provides the shared key-value primitives that back token revocation, rate-limit
// windows and aggregate counters. Every operation is atomic on a single key; callers never
// read-modify-write.
package kv

import (
	"context"
	"time"
)

// Store is a shared key-value store with TTL-bearing entries.
// Transport failures and timeouts are reported wrapped in errs.ErrStoreUnavailable.
type Store interface {
	// SetNX stores value under key with ttl unless the key already exists.
	// It reports whether this call created the entry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)
	// SetInt overwrites key with an integer value and ttl.
	SetInt(ctx context.Context, key string, n int64, ttl time.Duration) error
	// SetIntNX stores an integer value with ttl unless the key already exists.
	SetIntNX(ctx context.Context, key string, n int64, ttl time.Duration) (bool, error)
	// GetInt returns the integer stored under key; ok is false on a miss.
	GetInt(ctx context.Context, key string) (n int64, ok bool, err error)
	// IncrWindow increments key by one. The first increment (result 1) sets ttl; later ones
	// leave the expiry alone. It returns the new count and the key's remaining lifetime.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (count int64, left time.Duration, err error)
	// IncrByIfExists adds delta to key only when the key exists; ok is false on a miss.
	IncrByIfExists(ctx context.Context, key string, delta int64) (n int64, ok bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
