// Package auditlog is the durable record of workflow runs, the agent calls
// nested inside them, and the file artifacts they produce.
//
// Storage is a single SQLite file accessed through database/sql with the
// CGo-free modernc driver. Every operation is one parameterized statement,
// so each call either commits fully or surfaces a store error; there are no
// partial commits and no retries. Connections are leased per statement from
// the database/sql pool; the log holds no session state across calls.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/activationfn/watchtower/internal/model"
)

// timeFormat matches the registry's fixed-width RFC 3339 layout so rows sort
// chronologically under ORDER BY started_at.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

func nowUTC() string {
	return time.Now().UTC().Format(timeFormat)
}

// Log writes and reads the audit tables. Safe for concurrent use.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists. The path may carry DSN options; when it has none, a
// busy timeout and WAL journaling are applied so concurrent HTTP workers
// don't trip over SQLITE_BUSY.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Log, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: ping %s: %w", path, err)
	}

	l := &Log{db: db, logger: logger}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	return l.db.Close()
}

// Ping checks connectivity to the database file.
func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// initSchema creates the three audit tables if absent. Column names and
// nullability are a compatibility contract for tooling reading the file
// directly; changing them breaks external readers.
func (l *Log) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			project_name TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			status TEXT NOT NULL,
			model TEXT,
			flags TEXT,
			error_message TEXT,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS agent_calls (
			call_id TEXT PRIMARY KEY,
			run_id TEXT,
			agent_type TEXT NOT NULL,
			prompt TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			status TEXT NOT NULL,
			model TEXT,
			output_summary TEXT,
			error_message TEXT,
			duration_ms INTEGER,
			FOREIGN KEY (run_id) REFERENCES workflow_runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			artifact_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at TEXT NOT NULL,
			notes TEXT,
			FOREIGN KEY (run_id) REFERENCES workflow_runs(run_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("auditlog: create schema: %w", err)
		}
	}
	return nil
}

// marshalFlags serializes the caller-defined flags payload, or nil for NULL.
func marshalFlags(flags any) (*string, error) {
	if flags == nil {
		return nil, nil
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("auditlog: marshal flags: %w", err)
	}
	s := string(b)
	return &s, nil
}

// unmarshalFlags parses a stored flags column, falling back to the raw text
// when it is not valid JSON.
func unmarshalFlags(raw *string) any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return *raw
	}
	return v
}

// StartWorkflowRun inserts a new run with status "running". The run_id
// primary key is enforced: starting the same run twice returns a constraint
// error from the store.
func (l *Log) StartWorkflowRun(ctx context.Context, runID, workflowName, projectName string, modelName *string, flags any) error {
	flagsText, err := marshalFlags(flags)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (run_id, workflow_name, project_name, started_at, status, model, flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, workflowName, projectName, nowUTC(), "running", modelName, flagsText,
	)
	if err != nil {
		return fmt.Errorf("auditlog: start workflow run %s: %w", runID, err)
	}

	l.logger.Debug("workflow run started", "run_id", runID, "workflow", workflowName, "project", projectName)
	return nil
}

// CompleteWorkflowRun records the terminal status of a run. Unknown run IDs
// are a deliberate no-op (zero rows affected), mirroring the registry's
// tolerance of out-of-order completion reports.
func (l *Log) CompleteWorkflowRun(ctx context.Context, runID, status string, errorMessage, notes *string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE workflow_runs
		 SET completed_at = ?, status = ?, error_message = ?, notes = ?
		 WHERE run_id = ?`,
		nowUTC(), status, errorMessage, notes, runID,
	)
	if err != nil {
		return fmt.Errorf("auditlog: complete workflow run %s: %w", runID, err)
	}
	return nil
}

// LogAgentCall inserts a call record with status "running". The run_id
// reference is advisory: it may name a workflow run that was never started,
// which keeps standalone test calls loggable.
func (l *Log) LogAgentCall(ctx context.Context, callID, agentType, prompt string, runID, modelName *string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO agent_calls (call_id, run_id, agent_type, prompt, started_at, status, model)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		callID, runID, agentType, prompt, nowUTC(), "running", modelName,
	)
	if err != nil {
		return fmt.Errorf("auditlog: log agent call %s: %w", callID, err)
	}
	return nil
}

// CompleteAgentCall records the outcome of a call. Unknown call IDs are a
// no-op, like CompleteWorkflowRun.
func (l *Log) CompleteAgentCall(ctx context.Context, callID, status string, outputSummary, errorMessage *string, durationMs *int64) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE agent_calls
		 SET completed_at = ?, status = ?, output_summary = ?, error_message = ?, duration_ms = ?
		 WHERE call_id = ?`,
		nowUTC(), status, outputSummary, errorMessage, durationMs, callID,
	)
	if err != nil {
		return fmt.Errorf("auditlog: complete agent call %s: %w", callID, err)
	}
	return nil
}

// LogArtifact appends a file artifact row. Always succeeds regardless of
// whether run_id names an existing workflow run.
func (l *Log) LogArtifact(ctx context.Context, runID, filePath, action string, notes *string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, file_path, action, created_at, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, filePath, action, nowUTC(), notes,
	)
	if err != nil {
		return fmt.Errorf("auditlog: log artifact for %s: %w", runID, err)
	}
	return nil
}

const workflowColumns = `run_id, workflow_name, project_name, started_at, completed_at, status, model, flags, error_message, notes`

func scanWorkflowRun(row interface{ Scan(...any) error }) (model.WorkflowRun, error) {
	var run model.WorkflowRun
	var flags *string
	err := row.Scan(
		&run.RunID, &run.WorkflowName, &run.ProjectName, &run.StartedAt,
		&run.CompletedAt, &run.Status, &run.Model, &flags,
		&run.ErrorMessage, &run.Notes,
	)
	if err != nil {
		return model.WorkflowRun{}, err
	}
	run.Flags = unmarshalFlags(flags)
	return run, nil
}

// GetWorkflowRuns returns up to limit runs ordered by start time descending,
// optionally filtered to one project. Unlike the registry's scan this is an
// exact top-K query.
func (l *Log) GetWorkflowRuns(ctx context.Context, projectName string, limit int) ([]model.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + workflowColumns + ` FROM workflow_runs ORDER BY started_at DESC LIMIT ?`
	args := []any{limit}
	if projectName != "" {
		query = `SELECT ` + workflowColumns + ` FROM workflow_runs WHERE project_name = ? ORDER BY started_at DESC LIMIT ?`
		args = []any{projectName, limit}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditlog: list workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		run, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("auditlog: scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: list workflow runs: %w", err)
	}
	return runs, nil
}

// GetRunDetails assembles one run with its nested calls and artifacts from
// three independent reads. An unknown run ID is not an error: Workflow is
// nil and the collections are empty.
func (l *Log) GetRunDetails(ctx context.Context, runID string) (model.RunDetails, error) {
	details := model.RunDetails{
		AgentCalls: []model.AgentCall{},
		Artifacts:  []model.Artifact{},
	}

	run, err := scanWorkflowRun(l.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflow_runs WHERE run_id = ?`, runID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Leave Workflow nil; the detail reads below still run so orphaned
		// calls and artifacts referencing this run ID are returned.
	case err != nil:
		return model.RunDetails{}, fmt.Errorf("auditlog: get workflow run %s: %w", runID, err)
	default:
		details.Workflow = &run
	}

	callRows, err := l.db.QueryContext(ctx,
		`SELECT call_id, run_id, agent_type, prompt, started_at, completed_at, status, model, output_summary, error_message, duration_ms
		 FROM agent_calls WHERE run_id = ?`, runID)
	if err != nil {
		return model.RunDetails{}, fmt.Errorf("auditlog: get agent calls for %s: %w", runID, err)
	}
	defer callRows.Close()
	for callRows.Next() {
		var c model.AgentCall
		if err := callRows.Scan(
			&c.CallID, &c.RunID, &c.AgentType, &c.Prompt, &c.StartedAt,
			&c.CompletedAt, &c.Status, &c.Model, &c.OutputSummary,
			&c.ErrorMessage, &c.DurationMs,
		); err != nil {
			return model.RunDetails{}, fmt.Errorf("auditlog: scan agent call: %w", err)
		}
		details.AgentCalls = append(details.AgentCalls, c)
	}
	if err := callRows.Err(); err != nil {
		return model.RunDetails{}, fmt.Errorf("auditlog: get agent calls for %s: %w", runID, err)
	}

	artifactRows, err := l.db.QueryContext(ctx,
		`SELECT artifact_id, run_id, file_path, action, created_at, notes
		 FROM artifacts WHERE run_id = ?`, runID)
	if err != nil {
		return model.RunDetails{}, fmt.Errorf("auditlog: get artifacts for %s: %w", runID, err)
	}
	defer artifactRows.Close()
	for artifactRows.Next() {
		var a model.Artifact
		if err := artifactRows.Scan(
			&a.ArtifactID, &a.RunID, &a.FilePath, &a.Action, &a.CreatedAt, &a.Notes,
		); err != nil {
			return model.RunDetails{}, fmt.Errorf("auditlog: scan artifact: %w", err)
		}
		details.Artifacts = append(details.Artifacts, a)
	}
	if err := artifactRows.Err(); err != nil {
		return model.RunDetails{}, fmt.Errorf("auditlog: get artifacts for %s: %w", runID, err)
	}

	return details, nil
}
