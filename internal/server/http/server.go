// Package httpserver exposes the notekeeper JSON API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/limiter"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/service"
)

// Verifier checks bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string, kind model.TokenKind) (*model.User, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP-level settings.
type Config struct {
	UserLimit      int           // requests per window per authenticated user; 0 disables
	AnonLimit      int           // requests per window per client address; 0 disables
	RateWindow     time.Duration // fixed window length
	RequestTimeout time.Duration // deadline for every /api request; default 10s
	AllowedOrigins []string      // CORS origins; empty disables CORS handling
	TrustProxy     bool          // take the client address from X-Forwarded-For / X-Real-IP
}

// Services bundles the application services served by the API.
type Services struct {
	Auth       service.AuthService
	Categories service.CategoryService
	Notes      service.NoteService
}

// Server wires services into HTTP handlers.
type Server struct {
	cfg      Config
	svc      Services
	tokens   Verifier
	limiter  limiter.RateLimiter
	ready    map[string]Pinger
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// New constructs the HTTP server. ready lists the dependencies pinged by /readyz.
func New(cfg Config, svc Services, tokens Verifier, rl limiter.RateLimiter, ready map[string]Pinger, log *zap.Logger) *Server {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		svc:      svc,
		tokens:   tokens,
		limiter:  rl,
		ready:    ready,
		gatherer: prometheus.DefaultGatherer,
		log:      log.Named("http"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestID)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: false,
			MaxAge:           600,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(s.RateLimit)
			r.Post("/auth/signup", s.signup)
			r.Post("/auth/signin", s.signin)
			r.Post("/auth/refresh", s.refresh)
		})

		// failed authentication is charged to the client address inside Authenticate
		r.Group(func(r chi.Router) {
			r.Use(s.Authenticate)
			r.Use(s.RateLimit)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.me)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.listCategories)
				r.Post("/", s.createCategory)
				r.Get("/{id}", s.getCategory)
				r.Patch("/{id}", s.updateCategory)
				r.Delete("/{id}", s.deleteCategory)
			})
			r.Route("/notes", func(r chi.Router) {
				r.Get("/", s.listNotes)
				r.Post("/", s.createNote)
				r.Get("/{id}", s.getNote)
				r.Patch("/{id}", s.updateNote)
				r.Delete("/{id}", s.deleteNote)
			})
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.ready))
	status := http.StatusOK
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.log.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}
