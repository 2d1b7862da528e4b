package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/events"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

// NoteQuery selects a page of notes. Page is 1-based.
type NoteQuery struct {
	CategoryID *int64
	Search     string
	Page       int
	PageSize   int
}

// NoteList is a page of notes.
type NoteList struct {
	Notes    []model.Note
	Total    int64
	Page     int
	PageSize int
}

// HasNext reports whether a page follows this one.
func (l NoteList) HasNext() bool {
	return int64(l.Page*l.PageSize) < l.Total
}

// NoteService defines an owner's note operations.
type NoteService interface {
	Create(ctx context.Context, owner uuid.UUID, in model.NoteInput) (*model.Note, error)
	Get(ctx context.Context, owner uuid.UUID, id uuid.UUID) (*model.Note, error)
	List(ctx context.Context, owner uuid.UUID, q NoteQuery) (NoteList, error)
	Update(ctx context.Context, owner uuid.UUID, id uuid.UUID, p model.NotePatch) (*model.Note, error)
	Delete(ctx context.Context, owner uuid.UUID, id uuid.UUID) error
}

type NoteServiceImpl struct {
	categories repository.CategoryRepository
	notes      repository.NoteRepository
	counts     Counts
	events     events.Publisher
	log        *zap.Logger
}

var _ NoteService = (*NoteServiceImpl)(nil)

// NewNoteService constructs NoteService.
func NewNoteService(categories repository.CategoryRepository, notes repository.NoteRepository, counts Counts, pub events.Publisher, log *zap.Logger) *NoteServiceImpl {
	if pub == nil {
		pub = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteServiceImpl{categories: categories, notes: notes, counts: counts, events: pub, log: log.Named("notes")}
}

func (s *NoteServiceImpl) scope(owner uuid.UUID) *repository.Scoped {
	return repository.Scope(owner, s.categories, s.notes)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > MaxNoteTitle {
		return "", errs.Validationf("title must be at most %d characters", MaxNoteTitle)
	}
	return title, nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxNoteContent {
		return errs.Validationf("content must be at most %d characters", MaxNoteContent)
	}
	return nil
}

// Create adds a note. Without a category the note goes to the owner's default category
// (the protected one, else the most recently created), or stays uncategorized.
func (s *NoteServiceImpl) Create(ctx context.Context, owner uuid.UUID, in model.NoteInput) (_ *model.Note, err error) {
	ctx, span := tracer.Start(ctx, "NoteService.Create")
	defer func() { endSpan(span, err) }()

	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	sc := s.scope(owner)
	n := &model.Note{ID: id, Title: title, Content: in.Content, CategoryID: in.CategoryID}
	explicit := in.CategoryID != nil
	if !explicit {
		def, err := sc.DefaultCategory(ctx)
		if err != nil {
			return nil, fmt.Errorf("default category: %w", err)
		}
		if def != nil {
			n.CategoryID = &def.ID
		}
	}

	err = sc.CreateNote(ctx, n)
	if err != nil && !explicit && n.CategoryID != nil &&
		(errors.Is(err, repository.ErrCategoryMissing) || errors.Is(err, errs.ErrValidation)) {
		// the default category was deleted after it was resolved
		n.CategoryID = nil
		err = sc.CreateNote(ctx, n)
	}
	if errors.Is(err, repository.ErrCategoryMissing) {
		return nil, errs.Validationf("category %d does not exist or does not belong to you", *n.CategoryID)
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("note.id", n.ID.String()))
	if n.CategoryID != nil {
		s.counts.Increment(ctx, *n.CategoryID)
	}
	publish(ctx, s.events, s.log, events.Event{Type: events.NoteCreated, OwnerID: owner, NoteID: n.ID.String(), CategoryID: n.CategoryID})
	return n, nil
}

// Get loads one of the owner's notes.
func (s *NoteServiceImpl) Get(ctx context.Context, owner uuid.UUID, id uuid.UUID) (*model.Note, error) {
	return s.scope(owner).Note(ctx, id)
}

// List returns a page of the owner's notes, most recently updated first.
func (s *NoteServiceImpl) List(ctx context.Context, owner uuid.UUID, q NoteQuery) (_ NoteList, err error) {
	ctx, span := tracer.Start(ctx, "NoteService.List")
	defer func() { endSpan(span, err) }()

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 0 {
		return NoteList{}, errs.Validationf("page must be a positive integer")
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = DefaultPageSize
	case q.PageSize < 0:
		return NoteList{}, errs.Validationf("page_size must be a positive integer")
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}

	page, err := s.scope(owner).Notes(ctx, model.NoteFilter{
		CategoryID: q.CategoryID,
		Search:     strings.TrimSpace(q.Search),
		Limit:      q.PageSize,
		Offset:     (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		return NoteList{}, err
	}
	return NoteList{Notes: page.Notes, Total: page.Total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Update changes a note. Moving it between categories moves one unit between their counts.
func (s *NoteServiceImpl) Update(ctx context.Context, owner uuid.UUID, id uuid.UUID, p model.NotePatch) (_ *model.Note, err error) {
	ctx, span := tracer.Start(ctx, "NoteService.Update")
	defer func() { endSpan(span, err) }()

	if p.Title != nil {
		title, err := validateTitle(*p.Title)
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	if p.Content != nil {
		if err := validateContent(*p.Content); err != nil {
			return nil, err
		}
	}

	n, prev, err := s.scope(owner).UpdateNote(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if !sameCategory(prev, n.CategoryID) {
		if prev != nil {
			s.counts.Decrement(ctx, *prev)
		}
		if n.CategoryID != nil {
			s.counts.Increment(ctx, *n.CategoryID)
		}
	}
	publish(ctx, s.events, s.log, events.Event{Type: events.NoteUpdated, OwnerID: owner, NoteID: n.ID.String(), CategoryID: n.CategoryID})
	return n, nil
}

// Delete removes a note.
func (s *NoteServiceImpl) Delete(ctx context.Context, owner uuid.UUID, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "NoteService.Delete")
	defer func() { endSpan(span, err) }()

	cat, err := s.scope(owner).DeleteNote(ctx, id)
	if err != nil {
		return err
	}
	if cat != nil {
		s.counts.Decrement(ctx, *cat)
	}
	publish(ctx, s.events, s.log, events.Event{Type: events.NoteDeleted, OwnerID: owner, NoteID: id.String(), CategoryID: cat})
	return nil
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
