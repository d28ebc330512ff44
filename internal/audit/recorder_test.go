package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/rbac"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueAudit}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func denied() rbac.Decision {
	return rbac.Decision{
		Reason:   rbac.ReasonMissingPermission,
		Rule:     rbac.RuleMissing,
		ActorID:  "12",
		Role:     rbac.RoleEngineer,
		Required: []rbac.Permission{rbac.PermDeleteInquiries},
		Missing:  []rbac.Permission{rbac.PermDeleteInquiries},
	}
}

func TestLogRecorderLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	rec := LogRecorder{Logger: logger}

	rec.RecordDecision(rbac.Decision{Allowed: true, Rule: rbac.RuleRoleDefault, ActorID: "1"})
	assert.Empty(t, buf.String(), "grants are debug only")

	rec.RecordDecision(denied())
	assert.Contains(t, buf.String(), `"msg":"authz denied"`)
	assert.Contains(t, buf.String(), `"reason":"MissingPermission"`)
	assert.Contains(t, buf.String(), "deleteInquiries")

	LogRecorder{}.RecordDecision(denied())
}

func TestSinkFiltersAndEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	sink := NewSink(SinkConfig{Enqueuer: enq, Buffer: 8})

	sink.RecordDecision(rbac.Decision{Allowed: true, Rule: rbac.RuleRoleDefault, ActorID: "1"})
	sink.RecordDecision(rbac.Decision{Allowed: true, Rule: rbac.RuleOverride, ActorID: "1", Required: []rbac.Permission{rbac.PermViewReports}})
	sink.RecordDecision(denied())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sink.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return enq.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	entry, err := DecodeDecisionTask(enq.tasks[1])
	require.NoError(t, err)
	assert.Equal(t, ActionDecisionDenied, entry.Action)
	assert.Equal(t, "12", entry.ActorID)
	assert.Equal(t, "deleteInquiries", entry.EntityID)
	assert.Equal(t, "MissingPermission", entry.Meta["reason"])
	assert.NotEmpty(t, entry.Meta["decision_id"])

	entry, err = DecodeDecisionTask(enq.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, ActionDecisionOverride, entry.Action)
}

func TestSinkDropsWhenFull(t *testing.T) {
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_dropped_total"})
	sink := NewSink(SinkConfig{Enqueuer: &fakeEnqueuer{}, Buffer: 1, Dropped: dropped})

	sink.RecordDecision(denied())
	sink.RecordDecision(denied())
	sink.RecordDecision(denied())

	assert.Equal(t, float64(2), testutil.ToFloat64(dropped))
}

func TestSinkFlushesOnShutdown(t *testing.T) {
	enq := &fakeEnqueuer{}
	sink := NewSink(SinkConfig{Enqueuer: enq, Buffer: 4})
	sink.RecordDecision(denied())
	sink.RecordDecision(denied())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Run(ctx))
	assert.Equal(t, 2, enq.count())
}

func TestSinkEnqueueErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	sink := NewSink(SinkConfig{Enqueuer: enq, Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	sink.RecordDecision(denied())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Run(ctx))
	assert.Contains(t, buf.String(), "redis down")
}

func TestDecodeDecisionTaskRejectsGarbage(t *testing.T) {
	_, err := DecodeDecisionTask(asynq.NewTask(TaskDecision, []byte("{")))
	require.Error(t, err)
}
