package model

// Request bodies for the registry endpoints. Fields other than AgentID are
// optional; the handler substitutes defaults for omitted values.

// RegisterRequest is the body for POST /agents/register.
type RegisterRequest struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	Project   string `json:"project,omitempty"`
	Metadata  any    `json:"metadata,omitempty"`
}

// UpdateStatusRequest is the body for PUT /agents/{agent_id}/status.
type UpdateStatusRequest struct {
	Status      string `json:"status,omitempty"`
	CurrentTask string `json:"current_task,omitempty"`
	Progress    any    `json:"progress,omitempty"`
}

// CompleteRequest is the body for POST /agents/{agent_id}/complete.
type CompleteRequest struct {
	Status        string `json:"status,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// StartRunRequest is the body for POST /runs/start.
type StartRunRequest struct {
	RunID        string  `json:"run_id"`
	WorkflowName string  `json:"workflow_name"`
	ProjectName  string  `json:"project_name"`
	Model        *string `json:"model,omitempty"`
	Flags        any     `json:"flags,omitempty"`
}

// CompleteRunRequest is the body for POST /runs/{run_id}/complete.
type CompleteRunRequest struct {
	Status       string  `json:"status,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// LogCallRequest is the body for POST /calls.
type LogCallRequest struct {
	CallID    string  `json:"call_id"`
	AgentType string  `json:"agent_type"`
	Prompt    string  `json:"prompt"`
	RunID     *string `json:"run_id,omitempty"`
	Model     *string `json:"model,omitempty"`
}

// CompleteCallRequest is the body for POST /calls/{call_id}/complete.
type CompleteCallRequest struct {
	Status        string  `json:"status,omitempty"`
	OutputSummary *string `json:"output_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	DurationMs    *int64  `json:"duration_ms,omitempty"`
}

// LogArtifactRequest is the body for POST /runs/{run_id}/artifacts.
type LogArtifactRequest struct {
	FilePath string  `json:"file_path"`
	Action   string  `json:"action"`
	Notes    *string `json:"notes,omitempty"`
}

// Response envelopes. Every success payload carries status "ok"; errors use
// ErrorResponse with a human-readable message.

// AgentAck acknowledges a registry mutation.
type AgentAck struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

// AgentResponse wraps a single agent record.
type AgentResponse struct {
	Status string   `json:"status"`
	Agent  AgentRun `json:"agent"`
}

// AgentListResponse wraps a list of agent records.
type AgentListResponse struct {
	Status string     `json:"status"`
	Count  int        `json:"count"`
	Agents []AgentRun `json:"agents"`
}

// RunAck acknowledges an audit-log mutation keyed by run ID.
type RunAck struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// CallAck acknowledges an audit-log mutation keyed by call ID.
type CallAck struct {
	Status string `json:"status"`
	CallID string `json:"call_id"`
}

// RunListResponse wraps a list of workflow runs.
type RunListResponse struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Runs   []WorkflowRun `json:"runs"`
}

// RunDetailsResponse wraps the composite view of one workflow run.
type RunDetailsResponse struct {
	Status     string       `json:"status"`
	Workflow   *WorkflowRun `json:"workflow,omitempty"`
	AgentCalls []AgentCall  `json:"agent_calls"`
	Artifacts  []Artifact   `json:"artifacts"`
}

// ErrorResponse is the error payload for every failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// EndpointDescriptor describes one route in the service descriptor.
type EndpointDescriptor struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// ServiceDescriptor is the response for GET /.
type ServiceDescriptor struct {
	Service   string               `json:"service"`
	Version   string               `json:"version"`
	Endpoints []EndpointDescriptor `json:"endpoints"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
	SQLite string `json:"sqlite"`
	Uptime int64  `json:"uptime_seconds"`
}
