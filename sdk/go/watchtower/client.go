package watchtower

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Watchtower server
	// (e.g. "http://localhost:8082").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Watchtower API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("watchtower: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// ---------------------------------------------------------------------------
// Run registry
// ---------------------------------------------------------------------------

// Register announces a new agent run. Duplicate agent IDs overwrite the
// prior record on the server.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if req.AgentID == "" {
		return fmt.Errorf("watchtower: AgentID is required")
	}
	return c.post(ctx, "/agents/register", req, nil)
}

// UpdateStatus reports the agent's current activity. It doubles as a
// heartbeat: the server refreshes last_heartbeat on every call.
func (c *Client) UpdateStatus(ctx context.Context, agentID string, req UpdateStatusRequest) error {
	if agentID == "" {
		return fmt.Errorf("watchtower: agentID is required")
	}
	return c.put(ctx, "/agents/"+url.PathEscape(agentID)+"/status", req, nil)
}

// Complete reports a terminal status and removes the agent from the
// active set.
func (c *Client) Complete(ctx context.Context, agentID string, req CompleteRequest) error {
	if agentID == "" {
		return fmt.Errorf("watchtower: agentID is required")
	}
	return c.post(ctx, "/agents/"+url.PathEscape(agentID)+"/complete", req, nil)
}

// GetAgent looks up one agent run by ID. Use IsNotFound to detect an
// unknown agent.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentRun, error) {
	var resp agentResponse
	if err := c.get(ctx, "/agents/"+url.PathEscape(agentID), &resp); err != nil {
		return nil, err
	}
	return &resp.Agent, nil
}

// ActiveAgents lists every agent currently registered as non-terminal.
func (c *Client) ActiveAgents(ctx context.Context) ([]AgentRun, error) {
	var resp agentListResponse
	if err := c.get(ctx, "/agents/active", &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// AllAgents lists every agent the registry knows about, terminal runs
// included, newest first. A limit of 0 uses the server default (100).
func (c *Client) AllAgents(ctx context.Context, limit int) ([]AgentRun, error) {
	path := "/agents/all"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp agentListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// StartRun opens a durable workflow run record. Use IsConflict to detect a
// duplicate run ID.
func (c *Client) StartRun(ctx context.Context, req StartRunRequest) error {
	return c.post(ctx, "/runs/start", req, nil)
}

// CompleteRun closes a workflow run record. Completing an unknown run is a
// no-op on the server.
func (c *Client) CompleteRun(ctx context.Context, runID string, req CompleteRunRequest) error {
	return c.post(ctx, "/runs/"+url.PathEscape(runID)+"/complete", req, nil)
}

// LogCall records the start of one agent invocation. Use IsConflict to
// detect a duplicate call ID.
func (c *Client) LogCall(ctx context.Context, req LogCallRequest) error {
	return c.post(ctx, "/calls", req, nil)
}

// CompleteCall closes an agent invocation record.
func (c *Client) CompleteCall(ctx context.Context, callID string, req CompleteCallRequest) error {
	return c.post(ctx, "/calls/"+url.PathEscape(callID)+"/complete", req, nil)
}

// LogArtifact records a file touched during a run.
func (c *Client) LogArtifact(ctx context.Context, runID string, req LogArtifactRequest) error {
	return c.post(ctx, "/runs/"+url.PathEscape(runID)+"/artifacts", req, nil)
}

// ListRuns returns recent workflow runs, newest first, optionally filtered
// by project name. A limit of 0 uses the server default (50).
func (c *Client) ListRuns(ctx context.Context, project string, limit int) ([]WorkflowRun, error) {
	params := url.Values{}
	if project != "" {
		params.Set("project", project)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp runListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// RunDetails returns the composite view of one workflow run. An unknown run
// ID yields a RunDetails with a nil Workflow, not an error.
func (c *Client) RunDetails(ctx context.Context, runID string) (*RunDetails, error) {
	var resp runDetailsResponse
	if err := c.get(ctx, "/runs/"+url.PathEscape(runID), &resp); err != nil {
		return nil, err
	}
	return &RunDetails{
		Workflow:   resp.Workflow,
		AgentCalls: resp.AgentCalls,
		Artifacts:  resp.Artifacts,
	}, nil
}

// Health checks the server's health status. A degraded server answers 503,
// which surfaces here as an *Error carrying the payload.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPut, path, body, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("watchtower: create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("watchtower: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("watchtower: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("watchtower: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("watchtower: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("watchtower: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		apiErr.Message = envelope.Error
	} else {
		apiErr.Message = string(body)
	}

	return apiErr
}
