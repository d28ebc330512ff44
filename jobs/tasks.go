package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/fieldops/fieldops/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries authorization decisions awaiting persistence.
	QueueAudit = audit.QueueAudit
	// TaskSessionCleanup prunes expired session rows.
	TaskSessionCleanup = "sessions:cleanup"
)

// NewSessionCleanupTask constructs the cleanup task. It carries no payload.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionCleanup, nil)
}
