package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/libris-app/libris/internal/audit"
	jobmetrics "github.com/libris-app/libris/internal/jobs"
)

// AuditPruneJob deletes audit entries older than the retention window.
type AuditPruneJob struct {
	Audit     *audit.Service
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewAuditPruneJob wires dependencies for the prune handler. Retention
// falls back to 180 days when non-positive.
func NewAuditPruneJob(auditSvc *audit.Service, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPruneJob {
	if retention <= 0 {
		retention = 180 * 24 * time.Hour
	}
	return &AuditPruneJob{
		Audit:     auditSvc,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Handle processes audit prune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := j.Retention
	if payload.RetentionDays > 0 {
		retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskAuditPrune)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	logger.Info("starting audit prune")

	removed, err := j.Audit.Prune(ctx, retention)
	if err != nil {
		resultErr = err
		logger.Error("prune failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("audit prune finished", slog.Int64("removed", removed))
	return nil
}

func (j *AuditPruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
