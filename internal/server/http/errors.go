package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/errs"
)

const maxBody = 1 << 20

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// readJSON decodes the request body into v. Unknown fields are ignored.
func readJSON(r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errs.Validationf("content type must be application/json")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.Validationf("invalid JSON body")
	}
	return nil
}

// authMessages are the client-facing texts per auth failure kind.
var authMessages = map[errs.AuthKind]string{
	errs.InvalidCredentials: "Invalid credentials.",
	errs.MalformedToken:     "Token is invalid.",
	errs.TokenExpired:       "Token has expired.",
	errs.TokenRevoked:       "Token has been revoked.",
	errs.InactiveAccount:    "User account is disabled.",
}

// writeError maps service errors to HTTP responses. Causes of unauthorized and internal
// errors are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var rl *errs.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(rl.RetryAfter)))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Detail: "Request was throttled."})
	case errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Detail: "Request was throttled."})
	case errors.Is(err, errs.ErrUnauthorized):
		kind, _ := errs.AuthKindOf(err)
		msg, ok := authMessages[kind]
		if !ok {
			msg = "Authentication credentials were not provided."
		}
		if errors.Is(err, errs.ErrStoreUnavailable) {
			log.Warn("auth failed closed", zap.String("request_id", RequestIDFromCtx(r.Context())), zap.Error(err))
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Detail: msg})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Detail: "Not found."})
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrProtected):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Detail: err.Error()})
	case errors.Is(err, errs.ErrStoreUnavailable):
		log.Error("store unavailable", zap.String("request_id", RequestIDFromCtx(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Detail: "Service temporarily unavailable."})
	default:
		log.Error("request failed", zap.String("request_id", RequestIDFromCtx(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Detail: "Internal server error."})
	}
}
