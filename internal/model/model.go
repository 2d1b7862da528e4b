// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is an account (the authenticated principal). Users are never deleted by the service.
type User struct {
	ID        uuid.UUID // PK
	Email     string    // unique, normalized (lower-case, trimmed)
	PwdHash   string    // encoded argon2id hash, see internal/crypto
	Active    bool      // inactive accounts cannot sign in or use tokens
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenKind distinguishes access and refresh tokens.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Claims is the verified content of a token.
type Claims struct {
	Subject   uuid.UUID
	ID        string // jti
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair collects issued access/refresh tokens. RefreshToken is empty when a refresh
// does not rotate the refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Default category attributes given to every new owner.
const (
	DefaultCategoryName  = "Random Thoughts"
	DefaultCategoryColor = "#6366f1"
)

// Category groups notes of a single owner. (OwnerID, Name) is unique.
type Category struct {
	ID        int64
	OwnerID   uuid.UUID
	Name      string
	Color     string
	Protected bool  // the owner's default category; cannot be renamed or deleted
	NoteCount int64 // cached aggregate, filled by the category service
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryPatch carries optional category changes; nil fields are left untouched.
type CategoryPatch struct {
	Name  *string
	Color *string
}

// Note is a single note. OwnerID never changes after creation.
type Note struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	CategoryID *int64 // nil when the note has no category
	Title      string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NoteInput is the payload for note creation.
type NoteInput struct {
	Title      string
	Content    string
	CategoryID *int64 // nil selects the owner's default category
}

// NotePatch carries optional note changes. SetCategory distinguishes "leave category as is"
// from "set category to CategoryID (possibly nil)".
type NotePatch struct {
	Title       *string
	Content     *string
	SetCategory bool
	CategoryID  *int64
}

// NoteFilter narrows a note listing.
type NoteFilter struct {
	CategoryID *int64
	Search     string
	Limit      int
	Offset     int
}

// NotePage is a page of notes plus the total number of matching notes.
type NotePage struct {
	Notes []Note
	Total int64
}
