package counter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/kv"
)

type fakeSource struct {
	mu     sync.Mutex
	counts map[int64]int64
	gone   map[int64]bool
	calls  atomic.Int32
	err    error
	gate   chan struct{} // when set, CountNotes blocks until closed
	called chan struct{}
}

var _ CountSource = (*fakeSource)(nil)

func (f *fakeSource) CountNotes(ctx context.Context, id int64) (int64, error) {
	if f.calls.Add(1) == 1 && f.called != nil {
		close(f.called)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return 0, errs.ErrNotFound
	}
	return f.counts[id], nil
}

func (f *fakeSource) set(id, n int64) {
	f.mu.Lock()
	f.counts[id] = n
	f.mu.Unlock()
}

func newRedisCounter(t *testing.T, src CountSource) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(kv.NewRedisWithClient(client, "", 100*time.Millisecond), src, time.Hour, zaptest.NewLogger(t)), mr
}

func TestCounter_InitAndDeltas(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{}}
	c := New(kv.NewMemory(""), src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Init(ctx, 7)
	c.Increment(ctx, 7)
	c.Increment(ctx, 7)
	c.Increment(ctx, 7)
	c.Decrement(ctx, 7)

	n, err := c.Read(ctx, 7)
	if err != nil || n != 2 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("initialized entry must not hit the database, calls=%d", src.calls.Load())
	}
}

func TestCounter_MissRecountsWithoutDoubleCounting(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{3: 5}}
	c := New(kv.NewMemory(""), src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	// the note is already committed, so the database count includes it
	c.Increment(ctx, 3)
	n, err := c.Read(ctx, 3)
	if err != nil || n != 5 {
		t.Fatalf("after miss: n=%d err=%v", n, err)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("calls=%d", src.calls.Load())
	}
}

func TestCounter_ConvergesAfterTTL(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{}}
	c, mr := newRedisCounter(t, src)
	ctx := context.Background()

	c.Init(ctx, 1)
	// N creations, D deletions, M moves in; one increment is lost to simulate a missed update
	for i := 0; i < 4; i++ {
		c.Increment(ctx, 1)
	}
	c.Decrement(ctx, 1)
	src.set(1, 5)

	if n, _ := c.Read(ctx, 1); n != 3 {
		t.Fatalf("cached value before expiry n=%d", n)
	}
	mr.FastForward(time.Hour + time.Second)
	n, err := c.Read(ctx, 1)
	if err != nil || n != 5 {
		t.Fatalf("after TTL: n=%d err=%v", n, err)
	}
	if got := mr.TTL(Key(1)); got != time.Hour {
		t.Fatalf("rebuilt entry ttl=%v", got)
	}
}

func TestCounter_NegativeValueRebuilds(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{2: 1}}
	store := kv.NewMemory("")
	c := New(store, src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Init(ctx, 2)
	c.Decrement(ctx, 2)

	n, ok, _ := store.GetInt(ctx, Key(2))
	if !ok || n != 1 {
		t.Fatalf("entry must be rebuilt from the database: n=%d ok=%v", n, ok)
	}
}

func TestCounter_ReadRepairsNegativeEntry(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{6: 2}}
	store := kv.NewMemory("")
	c := New(store, src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := store.SetInt(ctx, Key(6), -1, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := c.Read(ctx, 6)
	if err != nil || n != 2 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	stored, ok, _ := store.GetInt(ctx, Key(6))
	if !ok || stored != 2 {
		t.Fatalf("entry must be rewritten: n=%d ok=%v", stored, ok)
	}
	if _, err := c.Read(ctx, 6); err != nil || src.calls.Load() != 1 {
		t.Fatalf("second read must hit the cache, calls=%d err=%v", src.calls.Load(), err)
	}
}

func TestCounter_DeletedCategoryIsNotRecreated(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{}, gone: map[int64]bool{12: true}}
	store := kv.NewMemory("")
	c := New(store, src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Init(ctx, 12)
	c.Remove(ctx, 12)
	// a note update that raced with the delete lands after Remove
	c.Increment(ctx, 12)

	if _, ok, _ := store.GetInt(ctx, Key(12)); ok {
		t.Fatalf("entry of a deleted category must stay gone")
	}
	n, err := c.Read(ctx, 12)
	if err != nil || n != 0 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if _, ok, _ := store.GetInt(ctx, Key(12)); ok {
		t.Fatalf("Read must not cache a deleted category")
	}
}

func TestCounter_Remove(t *testing.T) {
	store := kv.NewMemory("")
	c := New(store, &fakeSource{counts: map[int64]int64{}}, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Init(ctx, 9)
	c.Remove(ctx, 9)
	if _, ok, _ := store.GetInt(ctx, Key(9)); ok {
		t.Fatalf("entry must be gone")
	}
}

func TestCounter_StoreDown(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{4: 11}}
	c, mr := newRedisCounter(t, src)
	mr.Close()
	ctx := context.Background()

	c.Init(ctx, 4)
	c.Increment(ctx, 4)
	c.Decrement(ctx, 4)
	c.Remove(ctx, 4)

	n, err := c.Read(ctx, 4)
	if err != nil || n != 11 {
		t.Fatalf("read must fall back to the database: n=%d err=%v", n, err)
	}
}

func TestCounter_SourceError(t *testing.T) {
	src := &fakeSource{counts: map[int64]int64{}, err: errors.New("db down")}
	c := New(kv.NewMemory(""), src, time.Hour, zaptest.NewLogger(t))

	if _, err := c.Read(context.Background(), 1); err == nil {
		t.Fatalf("want error when both stores fail")
	}
	c.Increment(context.Background(), 1)
}

func TestCounter_ConcurrentMissesShareOneRecount(t *testing.T) {
	src := &fakeSource{
		counts: map[int64]int64{5: 8},
		gate:   make(chan struct{}),
		called: make(chan struct{}),
	}
	c := New(kv.NewMemory(""), src, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	const readers = 8
	var wg sync.WaitGroup
	results := make([]int64, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Read(ctx, 5)
		}(i)
	}
	<-src.called
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("database queried %d times", got)
	}
	for i, n := range results {
		if n != 8 {
			t.Fatalf("reader %d got %d", i, n)
		}
	}
}

func TestCounter_SharedRecountSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{
		counts: map[int64]int64{5: 8},
		gate:   make(chan struct{}),
		called: make(chan struct{}),
	}
	c := New(kv.NewMemory(""), src, time.Hour, zaptest.NewLogger(t))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = c.Read(firstCtx, 5)
	}()
	<-src.called

	const readers = 4
	var wg sync.WaitGroup
	results := make([]int64, readers)
	errsOut := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = c.Read(context.Background(), 5)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	<-firstDone

	for i := range results {
		if errsOut[i] != nil || results[i] != 8 {
			t.Fatalf("reader %d: n=%d err=%v", i, results[i], errsOut[i])
		}
	}
}

func TestKey(t *testing.T) {
	if Key(42) != "category-count:42" {
		t.Fatalf("key=%q", Key(42))
	}
}
