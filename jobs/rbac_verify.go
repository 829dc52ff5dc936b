package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/libris-app/libris/internal/jobs"
	"github.com/libris-app/libris/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RolesVerifyJob checks the default roles against the canonical grant
// matrix and optionally converges drifted roles back to it.
type RolesVerifyJob struct {
	RBAC    *rbac.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRolesVerifyJob wires dependencies for the verification handler.
func NewRolesVerifyJob(rbacSvc *rbac.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RolesVerifyJob {
	return &RolesVerifyJob{
		RBAC:    rbacSvc,
		Logger:  logger,
		Metrics: metrics,
	}
}

// Handle processes role verification tasks.
func (j *RolesVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.RBAC == nil {
		return errors.New("roles verify: handler not configured")
	}
	var payload RolesVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRolesVerify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("converge", payload.Converge))
	logger.Info("starting role verification")

	drift, err := j.RBAC.VerifyRoles(ctx)
	if err != nil {
		resultErr = err
		logger.Error("verification failed", slog.Any("error", err))
		return resultErr
	}

	for _, d := range drift {
		logger.Warn("role drift detected",
			slog.String("role", d.Role),
			slog.Any("missing", d.Missing),
			slog.Any("extra", d.Extra))
		j.metrics().AddRoleDrift(d.Role, "missing", len(d.Missing))
		j.metrics().AddRoleDrift(d.Role, "extra", len(d.Extra))
	}

	if len(drift) > 0 && payload.Converge {
		if err := j.RBAC.EnsureRoles(ctx); err != nil {
			resultErr = err
			logger.Error("convergence failed", slog.Any("error", err))
			return resultErr
		}
		logger.Info("roles converged to defaults", slog.Int("drifted", len(drift)))
	}

	logger.Info("role verification finished", slog.Int("drifted", len(drift)))
	return nil
}

func (j *RolesVerifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RolesVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
