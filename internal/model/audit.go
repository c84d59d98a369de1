package model

// WorkflowRun is the durable record of one execution of a named workflow.
// Column names and nullability are a compatibility contract for tooling
// that reads the SQLite database directly.
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

// AgentCall is one agent invocation, optionally nested inside a workflow run.
// RunID is an advisory reference: it may point at a workflow run that does
// not exist (standalone test calls), and nothing enforces it.
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

// Artifact records a file created, modified, or deleted during a run.
// Append-only; the action vocabulary is open.
type Artifact struct {
	ArtifactID int64   `json:"artifact_id"`
	RunID      string  `json:"run_id"`
	FilePath   string  `json:"file_path"`
	Action     string  `json:"action"`
	CreatedAt  string  `json:"created_at"`
	Notes      *string `json:"notes,omitempty"`
}

// RunDetails is the composite view of one workflow run: the run row plus
// every agent call and artifact that references it. Workflow is nil when
// the run ID is unknown; the slices are empty (never nil) in that case.
type RunDetails struct {
	Workflow   *WorkflowRun `json:"workflow,omitempty"`
	AgentCalls []AgentCall  `json:"agent_calls"`
	Artifacts  []Artifact   `json:"artifacts"`
}
