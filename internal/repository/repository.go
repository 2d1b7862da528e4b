package repository

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notekeeper/internal/model"
)

// ErrCategoryMissing reports that a note references a category row that no longer exists.
var ErrCategoryMissing = errors.New("referenced category does not exist")

// CategoryRepository stores categories. Every method filters by owner; a row of another
// owner is reported as errs.ErrNotFound.
type CategoryRepository interface {
	// Create inserts c and fills ID and timestamps. A reused name yields errs.ErrAlreadyExists.
	Create(ctx context.Context, c *model.Category) error
	Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Category, error)
	// List returns the owner's categories, oldest first.
	List(ctx context.Context, owner uuid.UUID) ([]model.Category, error)
	Update(ctx context.Context, owner uuid.UUID, id int64, p model.CategoryPatch) (*model.Category, error)
	// Delete detaches the category's notes and removes the category in one transaction.
	// Protected categories yield errs.ErrProtected.
	Delete(ctx context.Context, owner uuid.UUID, id int64) error
	// Default returns the owner's protected category, else the most recently created one
	// (highest id on ties), else errs.ErrNotFound.
	Default(ctx context.Context, owner uuid.UUID) (*model.Category, error)
}

// NoteRepository stores notes. Every method but CountNotes filters by owner.
type NoteRepository interface {
	// Create inserts n and fills timestamps. A vanished category yields ErrCategoryMissing.
	Create(ctx context.Context, n *model.Note) error
	Get(ctx context.Context, owner, id uuid.UUID) (*model.Note, error)
	// List returns one page of notes, most recently updated first.
	List(ctx context.Context, owner uuid.UUID, f model.NoteFilter) (model.NotePage, error)
	// Update applies p and returns the updated note and its category before the change.
	Update(ctx context.Context, owner, id uuid.UUID, p model.NotePatch) (n *model.Note, prevCategory *int64, err error)
	// Delete removes the note and returns the category it belonged to.
	Delete(ctx context.Context, owner, id uuid.UUID) (category *int64, err error)
	// CountNotes returns the number of notes referencing a category.
	CountNotes(ctx context.Context, categoryID int64) (int64, error)
}
