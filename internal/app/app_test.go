package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/notekeeper/internal/config"
	"github.com/and161185/notekeeper/internal/events"
	"github.com/and161185/notekeeper/internal/kv"
)

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{Store: config.StoreConfig{Driver: "memory", Prefix: "t:"}}
	s, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &kv.Memory{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "redis", Prefix: "t:"},
		Redis: config.RedisConfig{Addr: mr.Addr()},
	}
	s, err = OpenStore(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &kv.Redis{}, s)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	_, err = OpenStore(ctx, &config.Config{Store: config.StoreConfig{Driver: "etcd"}})
	require.Error(t, err)
}

func TestNewPublisher(t *testing.T) {
	log := zaptest.NewLogger(t)

	require.IsType(t, events.Noop{}, NewPublisher(config.KafkaConfig{}, log))

	p := NewPublisher(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "notes"}, log)
	require.IsType(t, &events.Kafka{}, p)
	require.NoError(t, p.Close())
}
