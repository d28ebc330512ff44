package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fieldops/fieldops/internal/audit"
	jobmetrics "github.com/fieldops/fieldops/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditWriter stores audit entries.
type AuditWriter interface {
	Insert(ctx context.Context, e audit.Entry) error
}

// AuditPersistJob writes queued authorization decisions to audit_logs.
type AuditPersistJob struct {
	Store   AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditPersistJob wires dependencies for the persist handler.
func NewAuditPersistJob(store AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPersistJob {
	return &AuditPersistJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes audit:decision tasks. Undecodable payloads are not retried.
func (j *AuditPersistJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit persist: handler not configured")
	}
	entry, err := audit.DecodeDecisionTask(t)
	if err != nil {
		j.logger().Warn("drop audit task", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	tracker := j.metrics().Track(audit.TaskDecision)
	if err := j.Store.Insert(ctx, entry); err != nil {
		return tracker.End(fmt.Errorf("audit persist: %w", err))
	}
	j.metrics().AddItems(audit.TaskDecision, 1)
	return tracker.End(nil)
}

func (j *AuditPersistJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuditPersistJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
