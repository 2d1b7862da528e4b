package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/notekeeper/internal/errs"
)

// incrWindowScript increments KEYS[1] and sets its expiry (ARGV[1], ms) only on the first hit,
// then reports {count, pttl}.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// incrIfExistsScript applies INCRBY only when KEYS[1] exists; a miss returns nil.
var incrIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCRBY', KEYS[1], ARGV[1])
end
return false
`)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	Prefix    string
	OpTimeout time.Duration
}

// Redis implements Store on a Redis server shared by all service instances.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	r := NewRedisWithClient(client, cfg.Prefix, cfg.OpTimeout)
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

var _ Store = (*Redis)(nil)

func (r *Redis) key(k string) string { return prefixed(r.prefix, k) }

func (r *Redis) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
}

// SetNX uses SET NX PX.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (r *Redis) SetInt(ctx context.Context, key string, n int64, ttl time.Duration) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), n, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) SetIntNX(ctx context.Context, key string, n int64, ttl time.Duration) (bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	ok, err := r.client.SetNX(ctx, r.key(key), n, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (r *Redis) GetInt(ctx context.Context, key string) (int64, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	n, err := r.client.Get(ctx, r.key(key)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, unavailable(err)
	}
	return n, true, nil
}

func (r *Redis) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	res, err := incrWindowScript.Run(ctx, r.client, []string{r.key(key)}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, unavailable(err)
	}
	if len(res) != 2 {
		return 0, 0, unavailable(fmt.Errorf("incr window: unexpected reply %v", res))
	}
	left := time.Duration(res[1]) * time.Millisecond
	if left < 0 {
		left = 0
	}
	return res[0], left, nil
}

func (r *Redis) IncrByIfExists(ctx context.Context, key string, delta int64) (int64, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	n, err := incrIfExistsScript.Run(ctx, r.client, []string{r.key(key)}, delta).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, unavailable(err)
	}
	return n, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
