// Package counter caches per-category note counts in the shared store.
//
// Counts are updated with atomic increment-if-present deltas after the backing store has
// committed the change. A missing entry is rebuilt from the backing store, whose count
// already includes the committed change, so the delta is not applied on top of a recount.
// Store failures never reach callers: reads fall back to the backing store and deltas are
// dropped, to be corrected on the next miss or TTL expiry.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/kv"
	"github.com/and161185/notekeeper/internal/metrics"
)

// DefaultTTL is the refresh interval of a counter entry.
const DefaultTTL = time.Hour

const recountTimeout = 5 * time.Second

// CountSource returns the true number of notes in a category, or errs.ErrNotFound
// when the category no longer exists.
type CountSource interface {
	CountNotes(ctx context.Context, categoryID int64) (int64, error)
}

// Counter maintains category-count:<id> entries.
type Counter struct {
	kv    kv.Store
	src   CountSource
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

// New creates a counter. A non-positive ttl selects DefaultTTL.
func New(store kv.Store, src CountSource, ttl time.Duration, log *zap.Logger) *Counter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Counter{kv: store, src: src, ttl: ttl, log: log}
}

// Key returns the store key for a category.
func Key(categoryID int64) string {
	return "category-count:" + strconv.FormatInt(categoryID, 10)
}

// Increment records one more note in the category.
func (c *Counter) Increment(ctx context.Context, categoryID int64) {
	c.apply(ctx, categoryID, 1)
}

// Decrement records one note less in the category.
func (c *Counter) Decrement(ctx context.Context, categoryID int64) {
	c.apply(ctx, categoryID, -1)
}

// Read returns the category's note count, rebuilding the entry on a miss.
// It only fails when the backing store fails too.
func (c *Counter) Read(ctx context.Context, categoryID int64) (int64, error) {
	n, ok, err := c.kv.GetInt(ctx, Key(categoryID))
	switch {
	case err != nil:
		metrics.CounterOps.WithLabelValues("store_error").Inc()
		c.log.Warn("counter read failed, counting from database", zap.Int64("category_id", categoryID), zap.Error(err))
		n, err := c.src.CountNotes(ctx, categoryID)
		if errors.Is(err, errs.ErrNotFound) {
			return 0, nil
		}
		return n, err
	case ok && n >= 0:
		metrics.CounterOps.WithLabelValues("hit").Inc()
		return n, nil
	case ok:
		c.log.Info("counter is negative, rebuilding", zap.Int64("category_id", categoryID), zap.Int64("value", n))
		if err := c.kv.Delete(ctx, Key(categoryID)); err != nil {
			c.log.Warn("counter reset failed", zap.Int64("category_id", categoryID), zap.Error(err))
		}
	default:
		metrics.CounterOps.WithLabelValues("miss").Inc()
	}
	return c.recount(ctx, categoryID)
}

// Init starts a new category at zero.
func (c *Counter) Init(ctx context.Context, categoryID int64) {
	if err := c.kv.SetInt(ctx, Key(categoryID), 0, c.ttl); err != nil {
		metrics.CounterOps.WithLabelValues("store_error").Inc()
		c.log.Warn("counter init failed", zap.Int64("category_id", categoryID), zap.Error(err))
	}
}

// Remove drops the entry of a deleted category.
func (c *Counter) Remove(ctx context.Context, categoryID int64) {
	if err := c.kv.Delete(ctx, Key(categoryID)); err != nil {
		metrics.CounterOps.WithLabelValues("store_error").Inc()
		c.log.Warn("counter remove failed", zap.Int64("category_id", categoryID), zap.Error(err))
	}
}

func (c *Counter) apply(ctx context.Context, categoryID int64, delta int64) {
	n, ok, err := c.kv.IncrByIfExists(ctx, Key(categoryID), delta)
	switch {
	case err != nil:
		metrics.CounterOps.WithLabelValues("store_error").Inc()
		c.log.Warn("counter update dropped", zap.Int64("category_id", categoryID), zap.Int64("delta", delta), zap.Error(err))
		return
	case ok && n >= 0:
		metrics.CounterOps.WithLabelValues("hit").Inc()
		return
	case ok:
		// below zero: the entry drifted, rebuild it
		c.log.Info("counter went negative, rebuilding", zap.Int64("category_id", categoryID), zap.Int64("value", n))
		if err := c.kv.Delete(ctx, Key(categoryID)); err != nil {
			c.log.Warn("counter reset failed", zap.Int64("category_id", categoryID), zap.Error(err))
			return
		}
	default:
		metrics.CounterOps.WithLabelValues("miss").Inc()
	}
	if _, err := c.recount(ctx, categoryID); err != nil {
		c.log.Warn("counter rebuild failed", zap.Int64("category_id", categoryID), zap.Error(err))
	}
}

// recount loads the true count and stores it unless another writer got there first.
// Concurrent recounts of one category share a single database query, which runs detached
// from any one caller's cancellation. A category that no longer exists is not cached.
func (c *Counter) recount(ctx context.Context, categoryID int64) (int64, error) {
	key := Key(categoryID)
	v, err, _ := c.group.Do(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recountTimeout)
		defer cancel()

		metrics.CounterOps.WithLabelValues("recompute").Inc()
		n, err := c.src.CountNotes(rctx, categoryID)
		if errors.Is(err, errs.ErrNotFound) {
			return int64(0), nil
		}
		if err != nil {
			return int64(0), fmt.Errorf("count notes: %w", err)
		}
		if _, err := c.kv.SetIntNX(rctx, key, n, c.ttl); err != nil {
			metrics.CounterOps.WithLabelValues("store_error").Inc()
			c.log.Warn("counter store failed", zap.Int64("category_id", categoryID), zap.Error(err))
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
