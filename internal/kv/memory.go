package kv

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implements Store in process memory. It gives the same single-key atomicity as Redis
// but is not shared between instances, so it only suits single-instance deployments and tests.
type Memory struct {
	c      *gocache.Cache
	prefix string
}

// NewMemory creates an in-memory store; expired entries are purged every minute.
func NewMemory(prefix string) *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute), prefix: prefix}
}

var _ Store = (*Memory)(nil)

func (m *Memory) key(k string) string { return prefixed(m.prefix, k) }

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := m.c.Add(m.key(key), value, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *Memory) SetInt(_ context.Context, key string, n int64, ttl time.Duration) error {
	m.c.Set(m.key(key), n, ttl)
	return nil
}

func (m *Memory) SetIntNX(_ context.Context, key string, n int64, ttl time.Duration) (bool, error) {
	return m.c.Add(m.key(key), n, ttl) == nil, nil
}

func (m *Memory) GetInt(_ context.Context, key string) (int64, bool, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(int64)
	return n, ok, nil
}

func (m *Memory) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	k := m.key(key)
	for {
		// Add fails when the window already exists, so only the first hit sets the expiry.
		_ = m.c.Add(k, int64(0), ttl)
		n, err := m.c.IncrementInt64(k, 1)
		if err != nil {
			// expired between Add and Increment; open a new window
			continue
		}
		_, exp, _ := m.c.GetWithExpiration(k)
		left := time.Until(exp)
		if exp.IsZero() || left < 0 {
			left = 0
		}
		return n, left, nil
	}
}

func (m *Memory) IncrByIfExists(_ context.Context, key string, delta int64) (int64, bool, error) {
	n, err := m.c.IncrementInt64(m.key(key), delta)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
