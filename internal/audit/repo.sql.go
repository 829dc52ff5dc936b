package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris-app/libris/internal/shared"
)

// Repository reads and prunes the audit trail.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	where := ` FROM audit_logs l LEFT JOIN users u ON u.id = l.actor_id WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Actor != "" {
		argCount++
		where += ` AND u.username ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Actor+"%")
	}
	if filters.Action != "" {
		argCount++
		where += ` AND l.action = $` + strconv.Itoa(argCount)
		args = append(args, filters.Action)
	}
	if filters.Entity != "" {
		argCount++
		where += ` AND l.entity = $` + strconv.Itoa(argCount)
		args = append(args, filters.Entity)
	}
	if !filters.From.IsZero() {
		argCount++
		where += ` AND l.occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		where += ` AND l.occurred_at < $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	query := `SELECT l.id, l.actor_id, COALESCE(u.username, ''), l.action, l.entity, l.entity_id, l.meta, l.occurred_at` +
		where + ` ORDER BY l.occurred_at DESC, l.id DESC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, perPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, perPage)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
