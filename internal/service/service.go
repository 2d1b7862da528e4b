// Package service contains the application services: authentication, categories and notes.
// Services validate input, drive the owner-scoped repositories and keep derived state (note
// counts, revocations, domain events) in step with committed changes.
package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/and161185/notekeeper/internal/model"
)

var tracer = otel.Tracer("notekeeper/service")

// Tokens is the token lifecycle used by the auth service.
type Tokens interface {
	Issue(ctx context.Context, u *model.User) (model.TokenPair, error)
	Refresh(ctx context.Context, raw string) (model.TokenPair, error)
	Revoke(ctx context.Context, raw string) error
}

// Counts maintains cached per-category note counts. Updates never fail the caller.
type Counts interface {
	Init(ctx context.Context, categoryID int64)
	Increment(ctx context.Context, categoryID int64)
	Decrement(ctx context.Context, categoryID int64)
	Remove(ctx context.Context, categoryID int64)
	Read(ctx context.Context, categoryID int64) (int64, error)
}

// Input limits.
const (
	MaxCategoryName = 100
	MaxNoteTitle    = 255
	MaxNoteContent  = 100000
	PreviewLength   = 200
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPassword     = 8
	MaxEmail        = 254
)

// Preview returns the first PreviewLength characters of content.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	return string([]rune(content)[:PreviewLength])
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
