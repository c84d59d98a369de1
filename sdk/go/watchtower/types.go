package watchtower

// AgentRun mirrors the server's ephemeral registry record. Timestamps are
// RFC 3339 UTC strings exactly as stored; Progress and Metadata carry
// whatever structure the agent reported.
type AgentRun struct {
	AgentID       string `json:"agent_id"`
	AgentType     string `json:"agent_type,omitempty"`
	Workflow      string `json:"workflow,omitempty"`
	Project       string `json:"project,omitempty"`
	Status        string `json:"status,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	CurrentTask   string `json:"current_task,omitempty"`
	Progress      any    `json:"progress,omitempty"`
	Metadata      any    `json:"metadata,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WorkflowRun mirrors the server's durable workflow run record.
type WorkflowRun struct {
	RunID        string  `json:"run_id"`
	WorkflowName string  `json:"workflow_name"`
	ProjectName  string  `json:"project_name"`
	StartedAt    string  `json:"started_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	Status       string  `json:"status"`
	Model        *string `json:"model,omitempty"`
	Flags        any     `json:"flags,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// AgentCall mirrors the server's durable agent call record.
type AgentCall struct {
	CallID        string  `json:"call_id"`
	RunID         *string `json:"run_id,omitempty"`
	AgentType     string  `json:"agent_type"`
	Prompt        string  `json:"prompt"`
	StartedAt     string  `json:"started_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	Status        string  `json:"status"`
	Model         *string `json:"model,omitempty"`
	OutputSummary *string `json:"output_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	DurationMs    *int64  `json:"duration_ms,omitempty"`
}

// Artifact mirrors the server's durable artifact record.
type Artifact struct {
	ArtifactID int64   `json:"artifact_id"`
	RunID      string  `json:"run_id"`
	FilePath   string  `json:"file_path"`
	Action     string  `json:"action"`
	CreatedAt  string  `json:"created_at"`
	Notes      *string `json:"notes,omitempty"`
}

// RunDetails is the composite view of one workflow run. Workflow is nil
// when the server does not know the run ID.
type RunDetails struct {
	Workflow   *WorkflowRun `json:"workflow,omitempty"`
	AgentCalls []AgentCall  `json:"agent_calls"`
	Artifacts  []Artifact   `json:"artifacts"`
}

// RegisterRequest announces a new agent run. AgentID is required; the server
// substitutes defaults for the other fields.
type RegisterRequest struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	Project   string `json:"project,omitempty"`
	Metadata  any    `json:"metadata,omitempty"`
}

// UpdateStatusRequest reports the agent's current activity. All fields are
// optional; the server defaults status to "running".
type UpdateStatusRequest struct {
	Status      string `json:"status,omitempty"`
	CurrentTask string `json:"current_task,omitempty"`
	Progress    any    `json:"progress,omitempty"`
}

// CompleteRequest reports a terminal status. The server defaults status to
// "completed".
type CompleteRequest struct {
	Status        string `json:"status,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// StartRunRequest opens a durable workflow run record.
type StartRunRequest struct {
	RunID        string  `json:"run_id"`
	WorkflowName string  `json:"workflow_name"`
	ProjectName  string  `json:"project_name"`
	Model        *string `json:"model,omitempty"`
	Flags        any     `json:"flags,omitempty"`
}

// CompleteRunRequest closes a durable workflow run record.
type CompleteRunRequest struct {
	Status       string  `json:"status,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// LogCallRequest records the start of one agent invocation.
type LogCallRequest struct {
	CallID    string  `json:"call_id"`
	AgentType string  `json:"agent_type"`
	Prompt    string  `json:"prompt"`
	RunID     *string `json:"run_id,omitempty"`
	Model     *string `json:"model,omitempty"`
}

// CompleteCallRequest closes an agent invocation record.
type CompleteCallRequest struct {
	Status        string  `json:"status,omitempty"`
	OutputSummary *string `json:"output_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	DurationMs    *int64  `json:"duration_ms,omitempty"`
}

// LogArtifactRequest records a file touched during a run.
type LogArtifactRequest struct {
	FilePath string  `json:"file_path"`
	Action   string  `json:"action"`
	Notes    *string `json:"notes,omitempty"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
	SQLite string `json:"sqlite"`
	Uptime int64  `json:"uptime_seconds"`
}

// Internal wire envelopes.

type agentResponse struct {
	Status string   `json:"status"`
	Agent  AgentRun `json:"agent"`
}

type agentListResponse struct {
	Status string     `json:"status"`
	Count  int        `json:"count"`
	Agents []AgentRun `json:"agents"`
}

type runListResponse struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Runs   []WorkflowRun `json:"runs"`
}

type runDetailsResponse struct {
	Status     string       `json:"status"`
	Workflow   *WorkflowRun `json:"workflow,omitempty"`
	AgentCalls []AgentCall  `json:"agent_calls"`
	Artifacts  []Artifact   `json:"artifacts"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}
