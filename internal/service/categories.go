package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
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

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CategoryService defines an owner's category operations. Returned categories carry their
// cached note count.
type CategoryService interface {
	List(ctx context.Context, owner uuid.UUID) ([]model.Category, error)
	Create(ctx context.Context, owner uuid.UUID, name, color string) (*model.Category, error)
	Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Category, error)
	Update(ctx context.Context, owner uuid.UUID, id int64, p model.CategoryPatch) (*model.Category, error)
	Delete(ctx context.Context, owner uuid.UUID, id int64) error
}

type CategoryServiceImpl struct {
	categories repository.CategoryRepository
	notes      repository.NoteRepository
	counts     Counts
	events     events.Publisher
	log        *zap.Logger
}

var _ CategoryService = (*CategoryServiceImpl)(nil)

// NewCategoryService constructs CategoryService.
func NewCategoryService(categories repository.CategoryRepository, notes repository.NoteRepository, counts Counts, pub events.Publisher, log *zap.Logger) *CategoryServiceImpl {
	if pub == nil {
		pub = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CategoryServiceImpl{categories: categories, notes: notes, counts: counts, events: pub, log: log.Named("categories")}
}

func (s *CategoryServiceImpl) scope(owner uuid.UUID) *repository.Scoped {
	return repository.Scope(owner, s.categories, s.notes)
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.Validationf("category name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxCategoryName {
		return "", errs.Validationf("category name must be at most %d characters", MaxCategoryName)
	}
	return name, nil
}

func normalizeColor(color string) (string, error) {
	if !colorRe.MatchString(color) {
		return "", errs.Validationf("color must be a valid hex color code (e.g., #6366f1)")
	}
	return strings.ToUpper(color), nil
}

func duplicateName(err error) error {
	if errors.Is(err, errs.ErrAlreadyExists) {
		return fmt.Errorf("%w: a category with this name already exists", errs.ErrAlreadyExists)
	}
	return err
}

// withCount fills the cached note count. A count failure leaves it at zero and is logged.
func (s *CategoryServiceImpl) withCount(ctx context.Context, c *model.Category) {
	n, err := s.counts.Read(ctx, c.ID)
	if err != nil {
		s.log.Warn("read note count", zap.Int64("category_id", c.ID), zap.Error(err))
		return
	}
	c.NoteCount = n
}

// List returns the owner's categories ordered by creation.
func (s *CategoryServiceImpl) List(ctx context.Context, owner uuid.UUID) (_ []model.Category, err error) {
	ctx, span := tracer.Start(ctx, "CategoryService.List")
	defer func() { endSpan(span, err) }()

	list, err := s.scope(owner).Categories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.withCount(ctx, &list[i])
	}
	return list, nil
}

// Create adds a category. Names are trimmed and unique per owner; color defaults to the
// default category color.
func (s *CategoryServiceImpl) Create(ctx context.Context, owner uuid.UUID, name, color string) (_ *model.Category, err error) {
	ctx, span := tracer.Start(ctx, "CategoryService.Create")
	defer func() { endSpan(span, err) }()

	name, err = normalizeName(name)
	if err != nil {
		return nil, err
	}
	if color == "" {
		color = model.DefaultCategoryColor
	}
	color, err = normalizeColor(color)
	if err != nil {
		return nil, err
	}

	c := &model.Category{Name: name, Color: color}
	if err := s.scope(owner).CreateCategory(ctx, c); err != nil {
		return nil, duplicateName(err)
	}
	span.SetAttributes(attribute.Int64("category.id", c.ID))
	s.counts.Init(ctx, c.ID)
	publish(ctx, s.events, s.log, events.Event{Type: events.CategoryCreated, OwnerID: owner, CategoryID: &c.ID})
	return c, nil
}

// Get loads one of the owner's categories.
func (s *CategoryServiceImpl) Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Category, error) {
	c, err := s.scope(owner).Category(ctx, id)
	if err != nil {
		return nil, err
	}
	s.withCount(ctx, c)
	return c, nil
}

// Update renames or recolors a category. The protected category keeps its name.
func (s *CategoryServiceImpl) Update(ctx context.Context, owner uuid.UUID, id int64, p model.CategoryPatch) (_ *model.Category, err error) {
	ctx, span := tracer.Start(ctx, "CategoryService.Update")
	defer func() { endSpan(span, err) }()

	sc := s.scope(owner)
	cur, err := sc.Category(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name, err := normalizeName(*p.Name)
		if err != nil {
			return nil, err
		}
		if cur.Protected && name != cur.Name {
			return nil, fmt.Errorf("%w: the %q category cannot be renamed", errs.ErrProtected, cur.Name)
		}
		p.Name = &name
	}
	if p.Color != nil {
		color, err := normalizeColor(*p.Color)
		if err != nil {
			return nil, err
		}
		p.Color = &color
	}

	c, err := sc.UpdateCategory(ctx, id, p)
	if err != nil {
		return nil, duplicateName(err)
	}
	s.withCount(ctx, c)
	return c, nil
}

// Delete removes a category; its notes become uncategorized and its counter is dropped.
func (s *CategoryServiceImpl) Delete(ctx context.Context, owner uuid.UUID, id int64) (err error) {
	ctx, span := tracer.Start(ctx, "CategoryService.Delete")
	defer func() { endSpan(span, err) }()

	if err := s.scope(owner).DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, errs.ErrProtected) {
			return fmt.Errorf("%w: the %q category cannot be deleted", errs.ErrProtected, model.DefaultCategoryName)
		}
		return err
	}
	s.counts.Remove(ctx, id)
	publish(ctx, s.events, s.log, events.Event{Type: events.CategoryDeleted, OwnerID: owner, CategoryID: &id})
	return nil
}
