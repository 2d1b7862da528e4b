package httpserver

import (
	"context"

	"github.com/and161185/notekeeper/internal/model"
)

type ctxKey string

const (
	principalKey ctxKey = "nk.principal"
	requestIDKey ctxKey = "nk.requestID"
)

// WithPrincipal stores the authenticated user in context.
func WithPrincipal(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, principalKey, u)
}

// PrincipalFromCtx fetches the authenticated user from context.
func PrincipalFromCtx(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(principalKey).(*model.User)
	return u, ok && u != nil
}

// RequestIDFromCtx returns the request id assigned by the request id middleware.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
