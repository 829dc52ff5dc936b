package shared

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions shared across handlers. Entity-specific actions live
// with their callers.
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists one audit entry. actorID 0 records a system action.
func (l *AuditLogger) Record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if action == "" || entity == "" || entityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		actorID, action, entity, entityID, metaJSON)
	return err
}
