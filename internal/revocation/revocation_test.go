package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/kv"
)

func TestMarkRevoked_CreatesOnce(t *testing.T) {
	s := New(kv.NewMemory(""))
	ctx := context.Background()

	created, err := s.MarkRevoked(ctx, "j1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first mark: created=%v err=%v", created, err)
	}
	created, err = s.MarkRevoked(ctx, "j1", time.Minute)
	if err != nil || created {
		t.Fatalf("second mark must report existing record: created=%v err=%v", created, err)
	}
	ok, err := s.IsRevoked(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("IsRevoked: ok=%v err=%v", ok, err)
	}
	ok, err = s.IsRevoked(ctx, "j2")
	if err != nil || ok {
		t.Fatalf("unknown jti: ok=%v err=%v", ok, err)
	}
}

func TestMarkRevoked_ExpiredTokenSkipsWrite(t *testing.T) {
	s := New(kv.NewMemory(""))
	created, err := s.MarkRevoked(context.Background(), "j1", 0)
	if err != nil || created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	if ok, _ := s.IsRevoked(context.Background(), "j1"); ok {
		t.Fatalf("no record expected")
	}
}

func TestRecordExpiresWithToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := New(kv.NewRedisWithClient(client, "", time.Second))
	ctx := context.Background()

	if _, err := s.MarkRevoked(ctx, "j1", 10*time.Minute); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := mr.TTL(Key("j1")); got != 10*time.Minute {
		t.Fatalf("ttl=%v", got)
	}
	mr.FastForward(10*time.Minute + time.Second)
	if ok, _ := s.IsRevoked(ctx, "j1"); ok {
		t.Fatalf("record must vanish with the token lifetime")
	}
}

func TestStoreDown_ReportsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := New(kv.NewRedisWithClient(client, "", 100*time.Millisecond))
	mr.Close()

	if _, err := s.IsRevoked(context.Background(), "j1"); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}
