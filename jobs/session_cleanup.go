package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fieldops/fieldops/internal/jobs"
)

// SessionPurger removes session rows that expired before now.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionCleanupJob prunes the sessions table. Bearer tokens themselves expire
// in Redis; the rows only back the session history.
type SessionCleanupJob struct {
	Sessions SessionPurger
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSessionCleanupJob wires dependencies for the cleanup handler.
func NewSessionCleanupJob(sessions SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionCleanupJob {
	return &SessionCleanupJob{
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes sessions:cleanup tasks.
func (j *SessionCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session cleanup: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := metrics.Track(TaskSessionCleanup)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	removed, err := j.Sessions.DeleteExpiredSessions(ctx, j.clock())
	if err != nil {
		logger.Error("session cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddItems(TaskSessionCleanup, removed)
	logger.Info("session cleanup completed", slog.Int64("removed", removed))
	return tracker.End(nil)
}
