package books

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris-app/libris/internal/shared"
)

// Repository defines persistence operations for books.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Book, int, error)
	Get(ctx context.Context, id int64) (Book, error)
	Create(ctx context.Context, book Book) (Book, error)
	Update(ctx context.Context, id int64, book Book) error
	Delete(ctx context.Context, id int64) error
	SetPublished(ctx context.Context, id int64, published bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const bookColumns = `b.id, b.title, b.author_id, a.name, b.publication_year, b.is_published, b.published_at, b.created_at, b.updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Book, int, error) {
	where := ` FROM books b JOIN authors a ON a.id = b.author_id WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND b.title ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.AuthorID > 0 {
		argCount++
		where += ` AND b.author_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.AuthorID)
	}
	if filters.Published != nil {
		argCount++
		where += ` AND b.is_published = $` + strconv.Itoa(argCount)
		args = append(args, *filters.Published)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + bookColumns + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, perPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	offset := (filters.Page - 1) * perPage
	if offset < 0 {
		offset = 0
	}
	args = append(args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.AuthorID, &b.AuthorName, &b.PublicationYear,
			&b.IsPublished, &b.PublishedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, b)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Book, error) {
	var b Book
	err := r.pool.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books b JOIN authors a ON a.id = b.author_id WHERE b.id = $1`, id).
		Scan(&b.ID, &b.Title, &b.AuthorID, &b.AuthorName, &b.PublicationYear,
			&b.IsPublished, &b.PublishedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, shared.ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}

func (r *repository) Create(ctx context.Context, book Book) (Book, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO books (title, author_id, publication_year, is_published)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		book.Title, book.AuthorID, book.PublicationYear, book.IsPublished).
		Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return Book{}, shared.ErrNotFound
		}
		return Book{}, err
	}
	return book, nil
}

func (r *repository) Update(ctx context.Context, id int64, book Book) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET title = $1, author_id = $2, publication_year = $3, updated_at = NOW()
		WHERE id = $4`,
		book.Title, book.AuthorID, book.PublicationYear, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetPublished(ctx context.Context, id int64, published bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books
		SET is_published = $1,
		    published_at = CASE WHEN $1 THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $2`, published, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "year":
		return "b.publication_year " + dir
	case "author":
		return "a.name " + dir + ", b.title ASC"
	case "created_at":
		return "b.created_at " + dir
	default:
		return "b.title " + dir
	}
}
