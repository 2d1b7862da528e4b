package repository_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
	"github.com/and161185/notekeeper/internal/repository/repotest"
)

func TestScoped_CrossOwnerAccessIsNotFound(t *testing.T) {
	store := repotest.New()
	ctx := context.Background()
	alice, bob := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	a, b := store.Scope(alice), store.Scope(bob)

	cat := &model.Category{Name: "Work", Color: "#112233"}
	require.NoError(t, a.CreateCategory(ctx, cat))
	note := &model.Note{ID: uuid.Must(uuid.NewV4()), Title: "secret", CategoryID: &cat.ID}
	require.NoError(t, a.CreateNote(ctx, note))
	require.Equal(t, alice, note.OwnerID)

	_, err := b.Category(ctx, cat.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	name := "Hijacked"
	_, err = b.UpdateCategory(ctx, cat.ID, model.CategoryPatch{Name: &name})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, b.DeleteCategory(ctx, cat.ID), errs.ErrNotFound)

	_, err = b.Note(ctx, note.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, _, err = b.UpdateNote(ctx, note.ID, model.NotePatch{Title: &name})
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = b.DeleteNote(ctx, note.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	list, err := b.Categories(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
	page, err := b.Notes(ctx, model.NoteFilter{Limit: 10})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	got, err := a.Note(ctx, note.ID)
	require.NoError(t, err)
	require.Equal(t, "secret", got.Title)
}

func TestScoped_OwnerFromScopeWins(t *testing.T) {
	store := repotest.New()
	ctx := context.Background()
	alice, bob := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	cat := &model.Category{OwnerID: bob, Name: "Spoofed"}
	require.NoError(t, store.Scope(alice).CreateCategory(ctx, cat))
	require.Equal(t, alice, cat.OwnerID)

	note := &model.Note{ID: uuid.Must(uuid.NewV4()), OwnerID: bob}
	require.NoError(t, store.Scope(alice).CreateNote(ctx, note))
	require.Equal(t, alice, note.OwnerID)
}

func TestScoped_ForeignCategoryReferenceIsValidationError(t *testing.T) {
	store := repotest.New()
	ctx := context.Background()
	alice, bob := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	bobs := &model.Category{Name: "Bob's"}
	require.NoError(t, store.Scope(bob).CreateCategory(ctx, bobs))

	a := store.Scope(alice)
	err := a.CreateNote(ctx, &model.Note{ID: uuid.Must(uuid.NewV4()), CategoryID: &bobs.ID})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = a.Notes(ctx, model.NoteFilter{CategoryID: &bobs.ID})
	require.ErrorIs(t, err, errs.ErrValidation)

	own := &model.Note{ID: uuid.Must(uuid.NewV4())}
	require.NoError(t, a.CreateNote(ctx, own))
	_, _, err = a.UpdateNote(ctx, own.ID, model.NotePatch{SetCategory: true, CategoryID: &bobs.ID})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestScoped_DefaultCategory(t *testing.T) {
	store := repotest.New()
	ctx := context.Background()
	s := store.Scope(uuid.Must(uuid.NewV4()))

	c, err := s.DefaultCategory(ctx)
	require.NoError(t, err)
	require.Nil(t, c, "no categories means no default")

	first := &model.Category{Name: "First"}
	second := &model.Category{Name: "Second"}
	require.NoError(t, s.CreateCategory(ctx, first))
	require.NoError(t, s.CreateCategory(ctx, second))
	c, err = s.DefaultCategory(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, c.ID, "most recent category")

	def := &model.Category{Name: model.DefaultCategoryName, Protected: true}
	require.NoError(t, s.CreateCategory(ctx, def))
	third := &model.Category{Name: "Third"}
	require.NoError(t, s.CreateCategory(ctx, third))
	c, err = s.DefaultCategory(ctx)
	require.NoError(t, err)
	require.Equal(t, def.ID, c.ID, "protected default wins")
}

// leaky returns rows regardless of owner, standing in for a broken backend.
type leaky struct {
	repository.CategoryRepository
	cat model.Category
}

func (l leaky) Get(context.Context, uuid.UUID, int64) (*model.Category, error) {
	c := l.cat
	return &c, nil
}

func (l leaky) List(context.Context, uuid.UUID) ([]model.Category, error) {
	return []model.Category{l.cat}, nil
}

func TestScoped_DropsRowsOfOtherOwners(t *testing.T) {
	foreign := model.Category{ID: 1, OwnerID: uuid.Must(uuid.NewV4()), Name: "x"}
	s := repository.Scope(uuid.Must(uuid.NewV4()), leaky{cat: foreign}, repotest.New().Notes())

	_, err := s.Category(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
	list, err := s.Categories(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}
