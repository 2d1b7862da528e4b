package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
)

// Scoped binds category and note access to a single owner. It injects the owner into every
// call, overrides any owner carried by inputs and reports rows of other owners as
// errs.ErrNotFound, never as forbidden.
type Scoped struct {
	owner      uuid.UUID
	categories CategoryRepository
	notes      NoteRepository
}

// Scope returns the repositories restricted to owner.
func Scope(owner uuid.UUID, categories CategoryRepository, notes NoteRepository) *Scoped {
	return &Scoped{owner: owner, categories: categories, notes: notes}
}

// Owner returns the bound owner.
func (s *Scoped) Owner() uuid.UUID { return s.owner }

func (s *Scoped) own(owner uuid.UUID) error {
	if owner != s.owner {
		return errs.ErrNotFound
	}
	return nil
}

// CreateCategory inserts a category for the bound owner.
func (s *Scoped) CreateCategory(ctx context.Context, c *model.Category) error {
	c.OwnerID = s.owner
	return s.categories.Create(ctx, c)
}

// Category loads one of the owner's categories.
func (s *Scoped) Category(ctx context.Context, id int64) (*model.Category, error) {
	c, err := s.categories.Get(ctx, s.owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.own(c.OwnerID); err != nil {
		return nil, err
	}
	return c, nil
}

// Categories lists the owner's categories.
func (s *Scoped) Categories(ctx context.Context) ([]model.Category, error) {
	list, err := s.categories.List(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, c := range list {
		if c.OwnerID == s.owner {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpdateCategory changes one of the owner's categories.
func (s *Scoped) UpdateCategory(ctx context.Context, id int64, p model.CategoryPatch) (*model.Category, error) {
	return s.categories.Update(ctx, s.owner, id, p)
}

// DeleteCategory removes one of the owner's categories, detaching its notes.
func (s *Scoped) DeleteCategory(ctx context.Context, id int64) error {
	return s.categories.Delete(ctx, s.owner, id)
}

// DefaultCategory resolves the category for notes created without one; nil when the owner
// has no categories.
func (s *Scoped) DefaultCategory(ctx context.Context) (*model.Category, error) {
	c, err := s.categories.Default(ctx, s.owner)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, s.own(c.OwnerID)
}

// checkCategory verifies a referenced category belongs to the owner.
func (s *Scoped) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := s.Category(ctx, *id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.Validationf("category %d does not exist or does not belong to you", *id)
		}
		return err
	}
	return nil
}

// CreateNote inserts a note for the bound owner. The category, if any, must be the owner's.
func (s *Scoped) CreateNote(ctx context.Context, n *model.Note) error {
	if err := s.checkCategory(ctx, n.CategoryID); err != nil {
		return err
	}
	n.OwnerID = s.owner
	return s.notes.Create(ctx, n)
}

// Note loads one of the owner's notes.
func (s *Scoped) Note(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	n, err := s.notes.Get(ctx, s.owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.own(n.OwnerID); err != nil {
		return nil, err
	}
	return n, nil
}

// Notes lists the owner's notes. A category filter must name one of the owner's categories.
func (s *Scoped) Notes(ctx context.Context, f model.NoteFilter) (model.NotePage, error) {
	if err := s.checkCategory(ctx, f.CategoryID); err != nil {
		return model.NotePage{}, err
	}
	return s.notes.List(ctx, s.owner, f)
}

// UpdateNote changes one of the owner's notes and reports its previous category.
func (s *Scoped) UpdateNote(ctx context.Context, id uuid.UUID, p model.NotePatch) (*model.Note, *int64, error) {
	if p.SetCategory {
		if err := s.checkCategory(ctx, p.CategoryID); err != nil {
			return nil, nil, err
		}
	}
	n, prev, err := s.notes.Update(ctx, s.owner, id, p)
	if err != nil {
		if errors.Is(err, ErrCategoryMissing) {
			return nil, nil, errs.Validationf("category %d does not exist or does not belong to you", derefOr(p.CategoryID))
		}
		return nil, nil, err
	}
	return n, prev, nil
}

// DeleteNote removes one of the owner's notes and reports the category it belonged to.
func (s *Scoped) DeleteNote(ctx context.Context, id uuid.UUID) (*int64, error) {
	cat, err := s.notes.Delete(ctx, s.owner, id)
	if err != nil {
		return nil, fmt.Errorf("delete note: %w", err)
	}
	return cat, nil
}

func derefOr(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
