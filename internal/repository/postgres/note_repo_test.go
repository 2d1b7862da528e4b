package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

var noteColumns = []string{"id", "user_id", "category_id", "title", "content", "created_at", "updated_at"}

func TestNoteRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	ctx := context.Background()
	now := time.Now()
	cat := int64(3)
	n := &model.Note{ID: uuid.Must(uuid.NewV4()), OwnerID: uuid.Must(uuid.NewV4()), CategoryID: &cat, Title: "t", Content: "c"}

	mock.ExpectQuery(`INSERT INTO notes \(id, user_id, category_id, title, content\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs(n.ID, n.OwnerID, &cat, "t", "c").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	require.NoError(t, r.Create(ctx, n))
	require.Equal(t, now, n.UpdatedAt)

	mock.ExpectQuery(`INSERT INTO notes`).
		WithArgs(n.ID, n.OwnerID, &cat, "t", "c").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.Create(ctx, n), repository.ErrCategoryMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_Get_OtherOwnerNotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	ctx := context.Background()
	owner, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`FROM notes WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows(noteColumns).AddRow(id, owner, (*int64)(nil), "t", "c", now, now))
	n, err := r.Get(ctx, owner, id)
	require.NoError(t, err)
	require.Nil(t, n.CategoryID)

	stranger := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`FROM notes WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, stranger).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, stranger, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNoteRepo_List_FiltersAndPaging(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	owner := uuid.Must(uuid.NewV4())
	cat := int64(2)
	now := time.Now()

	mock.ExpectQuery(`SELECT count\(\*\) FROM notes WHERE user_id=\$1 AND category_id=\$2 AND \(title ILIKE \$3 OR content ILIKE \$3\)`).
		WithArgs(owner, cat, `%50\%%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`ORDER BY updated_at DESC, id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs(owner, cat, `%50\%%`, 2, 2).
		WillReturnRows(pgxmock.NewRows(noteColumns).
			AddRow(uuid.Must(uuid.NewV4()), owner, &cat, "50% off", "", now, now))

	page, err := r.List(context.Background(), owner, model.NoteFilter{CategoryID: &cat, Search: "50%", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Notes, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_List_NoFilters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT count\(\*\) FROM notes WHERE user_id=\$1$`).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`WHERE user_id=\$1 ORDER BY updated_at DESC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs(owner, 20, 0).
		WillReturnRows(pgxmock.NewRows(noteColumns))

	page, err := r.List(context.Background(), owner, model.NoteFilter{Limit: 20})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Empty(t, page.Notes)
}

func TestNoteRepo_Update_ReturnsPreviousCategory(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	owner, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	oldCat, newCat := int64(1), int64(2)
	now := time.Now()
	p := model.NotePatch{SetCategory: true, CategoryID: &newCat}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT category_id FROM notes WHERE id=\$1 AND user_id=\$2 FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{"category_id"}).AddRow(&oldCat))
	mock.ExpectQuery(`UPDATE notes SET title = COALESCE\(\$3, title\)`).
		WithArgs(id, owner, (*string)(nil), (*string)(nil), true, &newCat).
		WillReturnRows(pgxmock.NewRows(noteColumns).AddRow(id, owner, &newCat, "t", "c", now, now))
	mock.ExpectCommit()

	n, prev, err := r.Update(context.Background(), owner, id, p)
	require.NoError(t, err)
	require.Equal(t, oldCat, *prev)
	require.Equal(t, newCat, *n.CategoryID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_Update_Errors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	ctx := context.Background()
	owner, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	newCat := int64(2)
	p := model.NotePatch{SetCategory: true, CategoryID: &newCat}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT category_id FROM notes`).WithArgs(id, owner).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	_, _, err := r.Update(ctx, owner, id, p)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT category_id FROM notes`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{"category_id"}).AddRow((*int64)(nil)))
	mock.ExpectQuery(`UPDATE notes`).
		WithArgs(id, owner, (*string)(nil), (*string)(nil), true, &newCat).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()
	_, _, err = r.Update(ctx, owner, id, p)
	require.ErrorIs(t, err, repository.ErrCategoryMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)
	ctx := context.Background()
	owner, id := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	cat := int64(4)

	mock.ExpectQuery(`DELETE FROM notes WHERE id=\$1 AND user_id=\$2 RETURNING category_id`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{"category_id"}).AddRow(&cat))
	got, err := r.Delete(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, cat, *got)

	mock.ExpectQuery(`DELETE FROM notes`).WithArgs(id, owner).WillReturnError(pgx.ErrNoRows)
	_, err = r.Delete(ctx, owner, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNoteRepo_CountNotes(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db)

	mock.ExpectQuery(`SELECT count\(n\.id\)\s+FROM categories c LEFT JOIN notes n`).
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	n, err := r.CountNotes(context.Background(), 4)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	mock.ExpectQuery(`FROM categories c LEFT JOIN notes n`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}))
	_, err = r.CountNotes(context.Background(), 5)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
