package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

// NoteRepo implements repository.NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

var _ repository.NoteRepository = (*NoteRepo)(nil)

const noteCols = `id, user_id, category_id, title, content, created_at, updated_at`

func scanNote(row pgx.Row) (*model.Note, error) {
	var n model.Note
	err := row.Scan(&n.ID, &n.OwnerID, &n.CategoryID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a note and fills its timestamps.
func (r *NoteRepo) Create(ctx context.Context, n *model.Note) error {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `
INSERT INTO notes (id, user_id, category_id, title, content)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, n.ID, n.OwnerID, n.CategoryID, n.Title, n.Content).Scan(&n.CreatedAt, &n.UpdatedAt)
	if isForeignKeyViolation(err) {
		return repository.ErrCategoryMissing
	}
	return err
}

// Get selects one of owner's notes.
func (r *NoteRepo) Get(ctx context.Context, owner, id uuid.UUID) (*model.Note, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `SELECT ` + noteCols + ` FROM notes WHERE id=$1 AND user_id=$2`
	return scanNote(r.db.Pool.QueryRow(ctx, q, id, owner))
}

// List selects a filtered page of owner's notes plus the total match count.
func (r *NoteRepo) List(ctx context.Context, owner uuid.UUID, f model.NoteFilter) (model.NotePage, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	where := []string{"user_id=$1"}
	args := []any{owner}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		where = append(where, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%[1]d OR content ILIKE $%[1]d)", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var page model.NotePage
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM notes WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return model.NotePage{}, err
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM notes WHERE %s ORDER BY updated_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		noteCols, cond, len(args)-1, len(args))
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return model.NotePage{}, err
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return model.NotePage{}, err
		}
		page.Notes = append(page.Notes, *n)
	}
	return page, rows.Err()
}

// Update applies the patch under a row lock and returns the previous category.
func (r *NoteRepo) Update(ctx context.Context, owner, id uuid.UUID, p model.NotePatch) (n *model.Note, prev *int64, err error) {
	err = r.db.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		const sel = `SELECT category_id FROM notes WHERE id=$1 AND user_id=$2 FOR UPDATE`
		const upd = `
UPDATE notes
SET title = COALESCE($3, title),
    content = COALESCE($4, content),
    category_id = CASE WHEN $5 THEN $6 ELSE category_id END,
    updated_at = now()
WHERE id=$1 AND user_id=$2
RETURNING ` + noteCols

		if err := tx.QueryRow(ctx, sel, id, owner).Scan(&prev); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		var uerr error
		n, uerr = scanNote(tx.QueryRow(ctx, upd, id, owner, p.Title, p.Content, p.SetCategory, p.CategoryID))
		if isForeignKeyViolation(uerr) {
			return repository.ErrCategoryMissing
		}
		return uerr
	})
	if err != nil {
		return nil, nil, err
	}
	return n, prev, nil
}

// Delete removes one of owner's notes and returns its category.
func (r *NoteRepo) Delete(ctx context.Context, owner, id uuid.UUID) (*int64, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `DELETE FROM notes WHERE id=$1 AND user_id=$2 RETURNING category_id`
	var cat *int64
	if err := r.db.Pool.QueryRow(ctx, q, id, owner).Scan(&cat); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return cat, nil
}

// CountNotes counts notes in a category; a missing category yields errs.ErrNotFound.
func (r *NoteRepo) CountNotes(ctx context.Context, categoryID int64) (int64, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `
SELECT count(n.id)
FROM categories c LEFT JOIN notes n ON n.category_id = c.id
WHERE c.id=$1
GROUP BY c.id`
	var n int64
	err := r.db.Pool.QueryRow(ctx, q, categoryID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.ErrNotFound
	}
	return n, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
