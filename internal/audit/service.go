package audit

import (
	"context"
	"log/slog"
	"time"
)

// Service orchestrates reads over the audit trail plus retention
// pruning used by the background job.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService returns a new audit Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Timeline lists entries matching the filters, newest first.
func (s *Service) Timeline(ctx context.Context, filters Filters) ([]Entry, int, error) {
	return s.repo.List(ctx, filters)
}

// Prune removes entries older than the retention window and returns
// how many rows were deleted.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned audit entries",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}
