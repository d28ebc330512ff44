package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldops/fieldops/internal/rbac"
)

// LogRecorder writes every decision to a structured logger: denials at Warn,
// grants at Debug.
type LogRecorder struct {
	Logger *slog.Logger
}

// RecordDecision implements rbac.Recorder.
func (r LogRecorder) RecordDecision(d rbac.Decision) {
	if r.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("actor", d.ActorID),
		slog.String("role", string(d.Role)),
		slog.String("rule", d.Rule),
		slog.Any("required", d.Required),
	}
	if d.OwnerID != "" {
		attrs = append(attrs, slog.String("owner", d.OwnerID))
	}
	if d.Allowed {
		r.Logger.Debug("authz allowed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("reason", string(d.Reason)), slog.Any("missing", d.Missing))
	r.Logger.Warn("authz denied", attrs...)
}

// Enqueuer is the subset of *asynq.Client used by Sink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SinkConfig configures a Sink.
type SinkConfig struct {
	Enqueuer Enqueuer
	Queue    string
	Buffer   int
	Logger   *slog.Logger
	// Dropped counts decisions discarded because the buffer was full.
	Dropped prometheus.Counter
	// Filter selects the decisions worth persisting. Defaults to Notable.
	Filter func(rbac.Decision) bool
}

// Sink hands notable decisions to the background worker for persistence.
// RecordDecision never blocks the request path; when the buffer is full the
// decision is dropped and counted.
type Sink struct {
	ch       chan pendingDecision
	enqueuer Enqueuer
	queue    string
	logger   *slog.Logger
	dropped  prometheus.Counter
	filter   func(rbac.Decision) bool
	now      func() time.Time
}

type pendingDecision struct {
	decision rbac.Decision
	at       time.Time
}

// NewSink constructs a Sink. Run must be started to drain it.
func NewSink(cfg SinkConfig) *Sink {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	queue := cfg.Queue
	if queue == "" {
		queue = QueueAudit
	}
	filter := cfg.Filter
	if filter == nil {
		filter = Notable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		ch:       make(chan pendingDecision, buffer),
		enqueuer: cfg.Enqueuer,
		queue:    queue,
		logger:   logger,
		dropped:  cfg.Dropped,
		filter:   filter,
		now:      time.Now,
	}
}

// Notable selects denials and grants that relied on a per-user override.
func Notable(d rbac.Decision) bool {
	return !d.Allowed || d.Rule == rbac.RuleOverride
}

// RecordDecision implements rbac.Recorder.
func (s *Sink) RecordDecision(d rbac.Decision) {
	if s == nil || !s.filter(d) {
		return
	}
	select {
	case s.ch <- pendingDecision{decision: d, at: s.now().UTC()}:
	default:
		if s.dropped != nil {
			s.dropped.Inc()
		}
	}
}

// Run enqueues buffered decisions until ctx is cancelled, then flushes what
// is left with a short grace period.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case p := <-s.ch:
			s.enqueue(ctx, p)
		case <-ctx.Done():
			s.flush()
			return nil
		}
	}
}

func (s *Sink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case p := <-s.ch:
			s.enqueue(ctx, p)
		default:
			return
		}
	}
}

func (s *Sink) enqueue(ctx context.Context, p pendingDecision) {
	if s.enqueuer == nil {
		return
	}
	task, opts, err := NewDecisionTask(p.decision, p.at)
	if err != nil {
		s.logger.Error("audit: build decision task", slog.Any("error", err))
		return
	}
	opts = append(opts, asynq.Queue(s.queue))
	if _, err := s.enqueuer.EnqueueContext(ctx, task, opts...); err != nil {
		s.logger.Warn("audit: enqueue decision", slog.Any("error", err), slog.String("actor", p.decision.ActorID))
	}
}
