package httpserver

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/notekeeper/internal/crypto"
	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/metrics"
	"github.com/and161185/notekeeper/internal/model"
)

// RequestID reuses a sane X-Request-ID from the client or generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" || len(rid) > 64 {
			b, _ := pkgcrypto.RandBytes(16)
			rid = hex.EncodeToString(b)
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Logging logs one line per request and records HTTP metrics. Bodies are never logged.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			dur := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(dur.Seconds())

			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("dur", dur),
				zap.String("remote", clientIP(r)),
				zap.String("request_id", RequestIDFromCtx(r.Context())),
			)
		})
	}
}

// Recover turns panics into 500 responses.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFromCtx(r.Context())),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Detail: "Internal server error."})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Authenticate requires a valid access token and stores its principal in context.
// Rejected requests are charged to the client address's budget, so token guessing is
// throttled like any other anonymous traffic.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			if s.allow(w, r, "anon", "anon:"+clientIP(r), s.cfg.AnonLimit) {
				writeError(w, r, s.log, errs.ErrUnauthorized)
			}
			return
		}
		u, err := s.tokens.Verify(r.Context(), raw, model.AccessToken)
		if err != nil {
			if s.allow(w, r, "anon", "anon:"+clientIP(r), s.cfg.AnonLimit) {
				writeError(w, r, s.log, err)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), u)))
	})
}

func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// RateLimit counts the request against the principal's budget, or the client address's
// budget for anonymous requests. Requests that cannot be counted are throttled.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, scope, limit := "anon", "anon:"+clientIP(r), s.cfg.AnonLimit
		if u, ok := PrincipalFromCtx(r.Context()); ok {
			kind, scope, limit = "user", "user:"+u.ID.String(), s.cfg.UserLimit
		}
		if s.allow(w, r, kind, scope, limit) {
			next.ServeHTTP(w, r)
		}
	})
}

// allow charges one request to scope. When the request is over budget, or the budget
// cannot be read, it writes 429 and returns false.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, kind, scope string, limit int) bool {
	if limit <= 0 {
		return true
	}
	d, err := s.limiter.Check(r.Context(), scope, limit, s.cfg.RateWindow)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(kind, "error").Inc()
		s.log.Warn("rate limit check failed", zap.String("scope", kind), zap.Error(err))
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	if !d.Allowed {
		if err == nil {
			metrics.RateLimitDecisions.WithLabelValues(kind, "throttled").Inc()
		}
		writeError(w, r, s.log, &errs.RateLimitError{RetryAfter: d.RetryAfter, Err: err})
		return false
	}
	metrics.RateLimitDecisions.WithLabelValues(kind, "allowed").Inc()
	return true
}
