package perf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/fieldops/fieldops/internal/audit"
	jobmetrics "github.com/fieldops/fieldops/internal/jobs"
	"github.com/fieldops/fieldops/internal/rbac"
	"github.com/fieldops/fieldops/jobs"
)

type flakyStore struct {
	mu      sync.Mutex
	entries []audit.Entry
	failing bool
}

func (s *flakyStore) Insert(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("connection reset")
	}
	s.entries = append(s.entries, e)
	return nil
}

func TestAuditPersistThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	store := &flakyStore{}
	job := jobs.NewAuditPersistJob(store, nil, metrics)
	ctx := context.Background()

	denied := rbac.Decision{
		Reason:   rbac.ReasonMissingPermission,
		Rule:     rbac.RuleMissing,
		ActorID:  "20",
		Role:     rbac.RoleUser,
		Required: []rbac.Permission{rbac.PermViewReports},
		Missing:  []rbac.Permission{rbac.PermViewReports},
	}
	for i := 0; i < 60; i++ {
		task, _, err := audit.NewDecisionTask(denied, time.Now())
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		if err := job.Handle(ctx, task); err != nil {
			t.Fatalf("unexpected error persisting decision: %v", err)
		}
	}

	// A database outage fails the run so asynq retries it.
	store.failing = true
	for i := 0; i < 3; i++ {
		task, _, err := audit.NewDecisionTask(denied, time.Now())
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		if err := job.Handle(ctx, task); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	// Garbage payloads are skipped, not retried, and not counted as runs.
	err := job.Handle(ctx, asynq.NewTask(audit.TaskDecision, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "fieldops_jobs_total", map[string]string{"job": audit.TaskDecision, "status": "success"})
	failure := metricValue(t, families, "fieldops_jobs_total", map[string]string{"job": audit.TaskDecision, "status": "failure"})
	if success != 60 || failure != 3 {
		t.Fatalf("unexpected run counts: success=%v failure=%v", success, failure)
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("audit persist success ratio too low: %f", ratio)
	}
	if items := metricValue(t, families, "fieldops_job_items_total", map[string]string{"job": audit.TaskDecision}); items != 60 {
		t.Fatalf("expected 60 persisted rows, got %v", items)
	}
	if mean := histogramMean(t, families, "fieldops_job_duration_seconds", map[string]string{"job": audit.TaskDecision}); mean > 0.5 {
		t.Fatalf("audit persist duration above budget: %f", mean)
	}
	if len(store.entries) != 60 || store.entries[0].Action != audit.ActionDecisionDenied {
		t.Fatalf("unexpected stored entries: %d", len(store.entries))
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
