// Package app assembles the notekeeper process from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/notekeeper/internal/config"
	"github.com/and161185/notekeeper/internal/counter"
	"github.com/and161185/notekeeper/internal/events"
	"github.com/and161185/notekeeper/internal/kv"
	"github.com/and161185/notekeeper/internal/limiter"
	"github.com/and161185/notekeeper/internal/metrics"
	"github.com/and161185/notekeeper/internal/migrate"
	"github.com/and161185/notekeeper/internal/repository/postgres"
	"github.com/and161185/notekeeper/internal/revocation"
	httpserver "github.com/and161185/notekeeper/internal/server/http"
	"github.com/and161185/notekeeper/internal/service"
	"github.com/and161185/notekeeper/internal/telemetry"
	"github.com/and161185/notekeeper/internal/token"
)

// Version is stamped at build time.
var Version = "dev"

// OpenStore builds the shared key-value store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return kv.NewMemory(cfg.Store.Prefix), nil
	case "redis":
		return kv.NewRedis(ctx, kv.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			Prefix:    cfg.Store.Prefix,
			OpTimeout: cfg.Store.OpTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewPublisher returns a Kafka publisher, or a discarding one when no brokers are configured.
func NewPublisher(cfg config.KafkaConfig, log *zap.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafka(cfg.Brokers, cfg.Topic, log)
}

// Run starts the API and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	}, log)
	if err != nil {
		return err
	}
	defer shutdownSafe("telemetry", shutdownTracer, log)

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if err := migrate.Run(ctx, cfg.Postgres.DSN, migrate.Up, log); err != nil {
		return err
	}
	db, err := postgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.OpTimeout)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if cfg.Store.Driver == "memory" {
		log.Warn("memory store selected: revocations, rate windows and counters are local to this instance")
	}

	pub := NewPublisher(cfg.Kafka, log)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("events: close", zap.Error(err))
		}
	}()

	users := postgres.NewUserRepo(db)
	categories := postgres.NewCategoryRepo(db)
	notes := postgres.NewNoteRepo(db)

	tokens, err := token.NewService(token.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Rotate:     cfg.Auth.Rotate,
	}, users, revocation.New(store), log)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	counts := counter.New(store, notes, cfg.Counter.TTL, log)
	guard := limiter.NewLockout(db.Pool, cfg.Auth.Lockout.Window, cfg.Auth.Lockout.MaxFails, cfg.Auth.Lockout.BlockFor)
	guard.Timeout = cfg.Postgres.OpTimeout

	api := httpserver.New(httpserver.Config{
		UserLimit:      cfg.RateLimit.User,
		AnonLimit:      cfg.RateLimit.Anon,
		RateWindow:     cfg.RateLimit.Window,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
	}, httpserver.Services{
		Auth:       service.NewAuthService(users, categories, tokens, guard, counts, pub, log),
		Categories: service.NewCategoryService(categories, notes, counts, pub, log),
		Notes:      service.NewNoteService(categories, notes, counts, pub, log),
	}, tokens, limiter.NewWindow(store), map[string]httpserver.Pinger{
		"postgres": db,
		"store":    store,
	}, log)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http: listening", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("http: shutting down")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("notekeeper exited with error", zap.Error(err))
		return err
	}
	log.Info("notekeeper shut down cleanly")
	return nil
}

func shutdownSafe(name string, fn telemetry.ShutdownFunc, log *zap.Logger) {
	if err := fn(context.Background()); err != nil {
		log.Error(name+": shutdown failed", zap.Error(err))
	}
}
