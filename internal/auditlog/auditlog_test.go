package auditlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activationfn/watchtower/internal/testutil"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func strPtr(s string) *string { return &s }

func TestStartAndListWorkflowRuns(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	flags := map[string]any{"dry_run": true}
	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", strPtr("opus"), flags))

	runs, err := l.GetWorkflowRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "r1", run.RunID)
	assert.Equal(t, "deploy", run.WorkflowName)
	assert.Equal(t, "api", run.ProjectName)
	assert.Equal(t, "running", run.Status)
	require.NotNil(t, run.Model)
	assert.Equal(t, "opus", *run.Model)
	assert.Equal(t, flags, run.Flags)
	assert.NotEmpty(t, run.StartedAt)
	assert.Nil(t, run.CompletedAt)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil))
	err := l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestCompleteWorkflowRun(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil))
	require.NoError(t, l.CompleteWorkflowRun(ctx, "r1", "failed", strPtr("timeout"), strPtr("retry later")))

	runs, err := l.GetWorkflowRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "timeout", *runs[0].ErrorMessage)
}

func TestCompleteUnknownRunIsNoOp(t *testing.T) {
	l := newTestLog(t)

	assert.NoError(t, l.CompleteWorkflowRun(context.Background(), "ghost", "completed", nil, nil))
}

func TestGetWorkflowRunsProjectFilterAndLimit(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	for i, project := range []string{"api", "web", "api", "api"} {
		require.NoError(t, l.StartWorkflowRun(ctx, "r"+string(rune('0'+i)), "deploy", project, nil, nil))
		time.Sleep(2 * time.Millisecond)
	}

	apiRuns, err := l.GetWorkflowRuns(ctx, "api", 0)
	require.NoError(t, err)
	assert.Len(t, apiRuns, 3)
	for _, run := range apiRuns {
		assert.Equal(t, "api", run.ProjectName)
	}

	limited, err := l.GetWorkflowRuns(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	// Newest first.
	assert.Equal(t, "r3", limited[0].RunID)
	assert.Equal(t, "r2", limited[1].RunID)
}

func TestAgentCallLifecycle(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil))
	require.NoError(t, l.LogAgentCall(ctx, "c1", "cursor-agent", "fix the tests", strPtr("r1"), strPtr("opus")))

	dur := int64(1234)
	require.NoError(t, l.CompleteAgentCall(ctx, "c1", "completed", strPtr("tests fixed"), nil, &dur))

	details, err := l.GetRunDetails(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, details.AgentCalls, 1)

	call := details.AgentCalls[0]
	assert.Equal(t, "completed", call.Status)
	require.NotNil(t, call.OutputSummary)
	assert.Equal(t, "tests fixed", *call.OutputSummary)
	require.NotNil(t, call.DurationMs)
	assert.Equal(t, dur, *call.DurationMs)
	require.NotNil(t, call.CompletedAt)
}

func TestDuplicateCallIDRejected(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.LogAgentCall(ctx, "c1", "cursor-agent", "prompt", nil, nil))
	err := l.LogAgentCall(ctx, "c1", "cursor-agent", "prompt", nil, nil)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestStandaloneCallWithoutRun(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	// run_id is advisory: a call may reference a run that was never started.
	require.NoError(t, l.LogAgentCall(ctx, "c1", "cursor-agent", "ad-hoc test", strPtr("never-started"), nil))

	details, err := l.GetRunDetails(ctx, "never-started")
	require.NoError(t, err)
	assert.Nil(t, details.Workflow)
	assert.Len(t, details.AgentCalls, 1)
}

func TestRunDetailsComposite(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil))
	require.NoError(t, l.LogAgentCall(ctx, "c1", "cursor-agent", "step one", strPtr("r1"), nil))
	require.NoError(t, l.LogAgentCall(ctx, "c2", "claude-agent", "step two", strPtr("r1"), nil))
	require.NoError(t, l.LogArtifact(ctx, "r1", "src/main.go", "modified", strPtr("refactor")))

	// Unrelated run to prove filtering.
	require.NoError(t, l.StartWorkflowRun(ctx, "r2", "deploy", "api", nil, nil))
	require.NoError(t, l.LogAgentCall(ctx, "c3", "cursor-agent", "other", strPtr("r2"), nil))

	details, err := l.GetRunDetails(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, details.Workflow)
	assert.Equal(t, "r1", details.Workflow.RunID)
	assert.Len(t, details.AgentCalls, 2)
	require.Len(t, details.Artifacts, 1)

	artifact := details.Artifacts[0]
	assert.Equal(t, "src/main.go", artifact.FilePath)
	assert.Equal(t, "modified", artifact.Action)
	assert.Positive(t, artifact.ArtifactID)
}

func TestRunDetailsUnknownRun(t *testing.T) {
	l := newTestLog(t)

	details, err := l.GetRunDetails(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, details.Workflow)
	assert.NotNil(t, details.AgentCalls)
	assert.NotNil(t, details.Artifacts)
	assert.Empty(t, details.AgentCalls)
	assert.Empty(t, details.Artifacts)
}

func TestSchemaSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	l, err := Open(ctx, path, testutil.TestLogger())
	require.NoError(t, err)
	require.NoError(t, l.StartWorkflowRun(ctx, "r1", "deploy", "api", nil, nil))
	require.NoError(t, l.Close())

	reopened, err := Open(ctx, path, testutil.TestLogger())
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.GetWorkflowRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
