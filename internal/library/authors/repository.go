package authors

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris-app/libris/internal/shared"
)

// Repository defines persistence operations for authors.
type Repository interface {
	List(ctx context.Context) ([]Author, error)
	Get(ctx context.Context, id int64) (Author, error)
	Create(ctx context.Context, name string) (Author, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Author, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.name, COUNT(b.id), a.created_at, a.updated_at
		FROM authors a
		LEFT JOIN books b ON b.author_id = a.id
		GROUP BY a.id
		ORDER BY a.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Name, &a.BookCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Author, error) {
	var a Author
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.name, COUNT(b.id), a.created_at, a.updated_at
		FROM authors a
		LEFT JOIN books b ON b.author_id = a.id
		WHERE a.id = $1
		GROUP BY a.id`, id).
		Scan(&a.ID, &a.Name, &a.BookCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Author{}, shared.ErrNotFound
		}
		return Author{}, err
	}
	return a, nil
}

func (r *repository) Create(ctx context.Context, name string) (Author, error) {
	var a Author
	err := r.pool.QueryRow(ctx, `
		INSERT INTO authors (name) VALUES ($1)
		RETURNING id, name, created_at, updated_at`, name).
		Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Author{}, shared.ErrDuplicate
		}
		return Author{}, err
	}
	return a, nil
}

func (r *repository) Rename(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE authors SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		// Books reference their author with ON DELETE RESTRICT.
		if shared.IsForeignKeyViolation(err) {
			return ErrAuthorHasBooks
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
