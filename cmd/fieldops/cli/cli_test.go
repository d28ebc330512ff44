package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/jobs"
)

func writeTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRolesCheckShippedTableMatchesBuiltin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"roles", "check", "--json", "../../../deploy/rbac/roles.yaml"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var summary RolesCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.True(t, summary.OK)
	require.Len(t, summary.Roles, 5)
	for _, diff := range summary.Roles {
		assert.False(t, diff.Missing, diff.Role)
		assert.Empty(t, diff.Added, diff.Role)
		assert.Empty(t, diff.Removed, diff.Role)
	}
}

func TestRolesCheckReportsDrift(t *testing.T) {
	path := writeTable(t, `
baseline: [viewDashboard]
roles:
  USER:
    permissions: [createInquiry, cancelInquiry, viewReports]
  ENGINEER:
    permissions: [viewAssignedInquiries, updateInquiryStatus]
  SERVICE_PROVIDER:
    inherits: ENGINEER
    permissions: [assignEngineers, manageEngineers]
  ADMIN:
    permissions: [manageUsers]
`)
	var stdout, stderr bytes.Buffer
	code := RolesCheckCommand(RolesCheckOptions{Path: path, Stdout: &stdout, Stderr: &stderr})
	assert.Equal(t, 10, code)
	out := stdout.String()
	assert.Contains(t, out, "+viewReports")
	assert.Contains(t, out, "-submitFeedback")
	assert.Contains(t, out, "SUPER_ADMIN")
	assert.Contains(t, out, "missing")
}

func TestRolesCheckRejectsUnknownPermission(t *testing.T) {
	path := writeTable(t, `
roles:
  USER:
    permissions: [launchRockets]
`)
	var stdout, stderr bytes.Buffer
	code := RolesCheckCommand(RolesCheckOptions{Path: path, JSONOutput: true, Stdout: &stdout, Stderr: &stderr})
	assert.Equal(t, 1, code)

	var summary RolesCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.False(t, summary.OK)
	assert.Contains(t, summary.Error, "launchRockets")
}

func TestRolesCheckRequiresPath(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, RolesCheckCommand(RolesCheckOptions{Stdout: &stdout, Stderr: &stderr}))
	assert.Contains(t, stderr.String(), "path to a role table is required")
}

func TestRunPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run(context.Background(), []string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage:")
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestJobsTrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}

	var stdout, stderr bytes.Buffer
	code := jobsCommand(context.Background(), c, "trigger", []string{jobs.TaskSessionCleanup}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskSessionCleanup, enq.tasks[0].Type())
	assert.Contains(t, stdout.String(), "enqueued sessions:cleanup")

	_, err := c.Trigger(context.Background(), "reports:rebuild")
	assert.Error(t, err)
}

func TestJobsInspectToleratesMissingQueue(t *testing.T) {
	c := &JobsCLI{inspector: fakeInspector{
		jobs.QueueAudit: {Queue: jobs.QueueAudit, Pending: 4, Retry: 1},
	}}

	stats, err := c.InspectQueues()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueAudit, Pending: 4, Retry: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])
}

type brokenInspector struct{}

func (brokenInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return nil, errors.New("redis down")
}

func TestJobsInspectSurfacesErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := jobsCommand(context.Background(), &JobsCLI{inspector: brokenInspector{}}, "inspect", nil, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "redis down")
}
