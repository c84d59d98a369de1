// Package model defines the core domain types for Watchtower.
//
// Registry types mirror the Redis hash layout field-for-field; audit types
// mirror the SQLite tables. Timestamps are RFC 3339 UTC strings in both
// stores, so they stay strings here rather than time.Time: a partially
// written record (see registry docs) may legitimately lack them.
package model

// AgentStatus is the lifecycle label reported by callers.
//
// The registry stores whatever label a caller supplies and never validates
// transitions; these constants only cover the conventional vocabulary.
type AgentStatus = string

const (
	StatusStarting  AgentStatus = "starting"
	StatusRunning   AgentStatus = "running"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
	StatusError     AgentStatus = "error"
)

// AgentRun is the ephemeral record for one observed agent process,
// stored as a single Redis hash keyed by agent ID.
//
// Metadata and Progress are caller-defined structured payloads. They are
// serialized to JSON at write time and parsed back at read time; a payload
// that fails to parse is surfaced as its raw text instead of failing the read.
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
