// Package registry tracks the lifecycle of running agents in Redis.
//
// Each agent is one hash under {prefix}agent:{agent_id}; the set
// {prefix}active holds the IDs considered non-terminal. The hash write and
// the set membership change are two separate Redis commands with no
// transaction between them: a register racing a complete on the same ID can
// observe the set change before the hash write or vice versa. That window is
// part of the contract; closing it would require a cross-operation lock and
// change the latency profile, so it is documented here instead.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/activationfn/watchtower/internal/model"
)

// ErrNotFound is returned by Get when no hash exists for the agent ID.
var ErrNotFound = errors.New("registry: agent not found")

// DefaultListLimit bounds ListAll when the caller passes limit <= 0.
const DefaultListLimit = 100

// scanBatchSize is the COUNT hint for the SCAN cursor in ListAll.
const scanBatchSize = 100

// Tracker is the ephemeral run registry. It holds one shared Redis client
// for the life of the process; go-redis establishes connections lazily and
// serializes per-key access on the server side, so the tracker itself does
// no locking. Safe for concurrent use.
type Tracker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a Tracker on the given client. All keys are namespaced under
// prefix (e.g. "watchtower:").
func New(client *redis.Client, prefix string, logger *slog.Logger) *Tracker {
	return &Tracker{client: client, prefix: prefix, logger: logger}
}

func (t *Tracker) agentKey(agentID string) string {
	return t.prefix + "agent:" + agentID
}

func (t *Tracker) activeKey() string {
	return t.prefix + "active"
}

// timeFormat is RFC 3339 with a fixed six-digit fraction. The fixed width
// keeps lexicographic order identical to chronological order, which ListAll
// relies on for its sort key.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

func nowUTC() string {
	return time.Now().UTC().Format(timeFormat)
}

// marshalPayload serializes a caller-defined structured payload for hash
// storage. A nil payload is stored as an empty JSON object so the field is
// always present on registered agents.
func marshalPayload(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// unmarshalPayload parses a stored payload, falling back to the raw text
// when it is not valid JSON. Malformed payloads never fail a read.
func unmarshalPayload(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// Register writes a full AgentRun record with status "starting" and adds the
// agent to the active set.
//
// Callers must supply globally unique IDs: registering an existing ID
// overwrites the prior record without complaint.
func (t *Tracker) Register(ctx context.Context, agentID, agentType, workflow, project string, metadata any) error {
	now := nowUTC()
	fields := map[string]any{
		"agent_id":       agentID,
		"agent_type":     agentType,
		"workflow":       workflow,
		"project":        project,
		"status":         model.StatusStarting,
		"started_at":     now,
		"last_heartbeat": now,
		"metadata":       marshalPayload(metadata),
	}

	if err := t.client.HSet(ctx, t.agentKey(agentID), fields).Err(); err != nil {
		return fmt.Errorf("registry: register %s: %w", agentID, err)
	}
	if err := t.client.SAdd(ctx, t.activeKey(), agentID).Err(); err != nil {
		return fmt.Errorf("registry: add %s to active set: %w", agentID, err)
	}

	t.logger.Debug("agent registered", "agent_id", agentID, "workflow", workflow, "project", project)
	return nil
}

// UpdateStatus merges a status change into the agent's hash and refreshes
// last_heartbeat. Empty currentTask and nil progress leave those fields
// untouched.
//
// HSET creates the hash if it does not exist, so updating an unregistered ID
// silently produces a partial record with no started_at. That matches the
// at-least-once, idempotent-by-overwrite contract; it is not an error.
func (t *Tracker) UpdateStatus(ctx context.Context, agentID, status, currentTask string, progress any) error {
	fields := map[string]any{
		"status":         status,
		"last_heartbeat": nowUTC(),
	}
	if currentTask != "" {
		fields["current_task"] = currentTask
	}
	if progress != nil {
		fields["progress"] = marshalPayload(progress)
	}

	if err := t.client.HSet(ctx, t.agentKey(agentID), fields).Err(); err != nil {
		return fmt.Errorf("registry: update %s: %w", agentID, err)
	}
	return nil
}

// Complete records a terminal status, sets completed_at, and removes the
// agent from the active set. The status label is caller-chosen and not
// validated; "completed", "failed", and "error" are conventional.
func (t *Tracker) Complete(ctx context.Context, agentID, status, resultSummary, errMsg string) error {
	now := nowUTC()
	fields := map[string]any{
		"status":         status,
		"completed_at":   now,
		"last_heartbeat": now,
	}
	if resultSummary != "" {
		fields["result_summary"] = resultSummary
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}

	if err := t.client.HSet(ctx, t.agentKey(agentID), fields).Err(); err != nil {
		return fmt.Errorf("registry: complete %s: %w", agentID, err)
	}
	if err := t.client.SRem(ctx, t.activeKey(), agentID).Err(); err != nil {
		return fmt.Errorf("registry: remove %s from active set: %w", agentID, err)
	}

	t.logger.Debug("agent completed", "agent_id", agentID, "status", status)
	return nil
}

// Get returns the record for one agent, or ErrNotFound if no hash exists.
func (t *Tracker) Get(ctx context.Context, agentID string) (model.AgentRun, error) {
	data, err := t.client.HGetAll(ctx, t.agentKey(agentID)).Result()
	if err != nil {
		return model.AgentRun{}, fmt.Errorf("registry: get %s: %w", agentID, err)
	}
	if len(data) == 0 {
		return model.AgentRun{}, ErrNotFound
	}
	return fromHash(agentID, data), nil
}

// fromHash maps a Redis hash onto an AgentRun. Fields absent from the hash
// stay zero; metadata and progress are parsed soft.
func fromHash(agentID string, data map[string]string) model.AgentRun {
	run := model.AgentRun{
		AgentID:       agentID,
		AgentType:     data["agent_type"],
		Workflow:      data["workflow"],
		Project:       data["project"],
		Status:        data["status"],
		StartedAt:     data["started_at"],
		LastHeartbeat: data["last_heartbeat"],
		CompletedAt:   data["completed_at"],
		CurrentTask:   data["current_task"],
		ResultSummary: data["result_summary"],
		Error:         data["error"],
	}
	if raw, ok := data["metadata"]; ok {
		run.Metadata = unmarshalPayload(raw)
	}
	if raw, ok := data["progress"]; ok {
		run.Progress = unmarshalPayload(raw)
	}
	return run
}

// ListActive resolves every member of the active set to its record. IDs in
// the set whose hash has been deleted externally are skipped silently.
func (t *Tracker) ListActive(ctx context.Context) ([]model.AgentRun, error) {
	ids, err := t.client.SMembers(ctx, t.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: read active set: %w", err)
	}

	agents := make([]model.AgentRun, 0, len(ids))
	for _, id := range ids {
		run, err := t.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		agents = append(agents, run)
	}
	return agents, nil
}

// ListAll returns up to limit records across all agents, active or not,
// ordered by started_at descending.
//
// The listing is best-effort: the SCAN terminates as soon as limit records
// have been accumulated, so when the store holds more than limit records the
// result is the top of the records encountered so far, not a true top-K.
// Callers needing exactness must pass a limit at least the total record count.
func (t *Tracker) ListAll(ctx context.Context, limit int) ([]model.AgentRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	keyPrefix := t.prefix + "agent:"
	agents := make([]model.AgentRun, 0, limit)

	var cursor uint64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("registry: scan agents: %w", err)
		}
		for _, key := range keys {
			run, err := t.Get(ctx, strings.TrimPrefix(key, keyPrefix))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			agents = append(agents, run)
		}
		cursor = next
		if cursor == 0 || len(agents) >= limit {
			break
		}
	}

	// Fixed-width RFC 3339 strings order the same as the instants they
	// encode, so a plain string sort gives started_at descending.
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].StartedAt > agents[j].StartedAt
	})
	if len(agents) > limit {
		agents = agents[:limit]
	}
	return agents, nil
}

// Ping checks connectivity to Redis.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
