package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

// CategoryRepo implements repository.CategoryRepository using PostgreSQL.
type CategoryRepo struct{ db *DB }

// NewCategoryRepo constructs a category repository.
func NewCategoryRepo(db *DB) *CategoryRepo { return &CategoryRepo{db: db} }

var _ repository.CategoryRepository = (*CategoryRepo)(nil)

const categoryCols = `id, user_id, name, color, protected, created_at, updated_at`

func scanCategory(row pgx.Row) (*model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.Protected, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a category and fills its id and timestamps.
func (r *CategoryRepo) Create(ctx context.Context, c *model.Category) error {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `
INSERT INTO categories (user_id, name, color, protected)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, c.OwnerID, c.Name, c.Color, c.Protected).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects one of owner's categories.
func (r *CategoryRepo) Get(ctx context.Context, owner uuid.UUID, id int64) (*model.Category, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `SELECT ` + categoryCols + ` FROM categories WHERE id=$1 AND user_id=$2`
	return scanCategory(r.db.Pool.QueryRow(ctx, q, id, owner))
}

// List selects all of owner's categories, oldest first.
func (r *CategoryRepo) List(ctx context.Context, owner uuid.UUID) ([]model.Category, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `SELECT ` + categoryCols + ` FROM categories WHERE user_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Update applies non-nil patch fields.
func (r *CategoryRepo) Update(ctx context.Context, owner uuid.UUID, id int64, p model.CategoryPatch) (*model.Category, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `
UPDATE categories
SET name = COALESCE($3, name), color = COALESCE($4, color), updated_at = now()
WHERE id=$1 AND user_id=$2
RETURNING ` + categoryCols
	c, err := scanCategory(r.db.Pool.QueryRow(ctx, q, id, owner, p.Name, p.Color))
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	return c, err
}

// Delete detaches the category's notes and removes it in one transaction.
func (r *CategoryRepo) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	return r.db.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		const sel = `SELECT protected FROM categories WHERE id=$1 AND user_id=$2 FOR UPDATE`
		const detach = `UPDATE notes SET category_id=NULL WHERE category_id=$1 AND user_id=$2`
		const del = `DELETE FROM categories WHERE id=$1 AND user_id=$2`

		var protected bool
		if err := tx.QueryRow(ctx, sel, id, owner).Scan(&protected); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if protected {
			return errs.ErrProtected
		}
		if _, err := tx.Exec(ctx, detach, id, owner); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, del, id, owner)
		return err
	})
}

// Default selects the protected category, else the newest one.
func (r *CategoryRepo) Default(ctx context.Context, owner uuid.UUID) (*model.Category, error) {
	ctx, cancel := r.db.op(ctx)
	defer cancel()
	const q = `
SELECT ` + categoryCols + `
FROM categories
WHERE user_id=$1
ORDER BY protected DESC, created_at DESC, id DESC
LIMIT 1`
	return scanCategory(r.db.Pool.QueryRow(ctx, q, owner))
}
