package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activationfn/watchtower/internal/auditlog"
	"github.com/activationfn/watchtower/internal/mcp"
	"github.com/activationfn/watchtower/internal/model"
	"github.com/activationfn/watchtower/internal/ratelimit"
	"github.com/activationfn/watchtower/internal/registry"
	"github.com/activationfn/watchtower/internal/server"
	"github.com/activationfn/watchtower/internal/testutil"
)

var (
	testSrv     *httptest.Server
	testTracker *registry.Tracker
	testAudit   *auditlog.Log
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
		os.Exit(1)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := testutil.TestLogger()
	testTracker = registry.New(client, "test:", logger)

	dir, err := os.MkdirTemp("", "watchtower-server-test")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	testAudit, err = auditlog.Open(ctx, filepath.Join(dir, "audit.db"), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log: %v\n", err)
		os.Exit(1)
	}

	mcpSrv := mcp.New(testTracker, logger, "test")
	srv := server.New(server.ServerConfig{
		Tracker:             testTracker,
		Audit:               testAudit,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                0,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 * 1024 * 1024,
	})

	testSrv = httptest.NewServer(srv.Handler())

	code := m.Run()

	testSrv.Close()
	_ = testAudit.Close()
	_ = client.Close()
	mr.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testSrv.URL+path, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", string(data))
	return v
}

func TestRootDescriptor(t *testing.T) {
	resp, data := doJSON(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	desc := decode[model.ServiceDescriptor](t, data)
	assert.Equal(t, "watchtower", desc.Service)
	assert.Equal(t, "test", desc.Version)
	assert.NotEmpty(t, desc.Endpoints)
}

func TestHealthEndpoint(t *testing.T) {
	resp, data := doJSON(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[model.HealthResponse](t, data)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Redis)
	assert.Equal(t, "connected", health.SQLite)
}

func TestAgentLifecycle(t *testing.T) {
	resp, data := doJSON(t, http.MethodPost, "/agents/register", model.RegisterRequest{
		AgentID:  "http-a1",
		Workflow: "deploy",
		Project:  "api",
		Metadata: map[string]any{"pr": 42},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ack := decode[model.AgentAck](t, data)
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, "http-a1", ack.AgentID)

	resp, data = doJSON(t, http.MethodGet, "/agents/http-a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.AgentResponse](t, data)
	assert.Equal(t, model.StatusStarting, got.Agent.Status)
	assert.Equal(t, "cursor-agent", got.Agent.AgentType, "omitted agent_type defaults")
	assert.Equal(t, "deploy", got.Agent.Workflow)

	resp, _ = doJSON(t, http.MethodPut, "/agents/http-a1/status", model.UpdateStatusRequest{
		CurrentTask: "compiling",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = doJSON(t, http.MethodGet, "/agents/http-a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[model.AgentResponse](t, data)
	assert.Equal(t, model.StatusRunning, got.Agent.Status, "omitted status defaults to running")
	assert.Equal(t, "compiling", got.Agent.CurrentTask)

	resp, _ = doJSON(t, http.MethodPost, "/agents/http-a1/complete", model.CompleteRequest{
		ResultSummary: "shipped",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = doJSON(t, http.MethodGet, "/agents/http-a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[model.AgentResponse](t, data)
	assert.Equal(t, model.StatusCompleted, got.Agent.Status)
	assert.Equal(t, "shipped", got.Agent.ResultSummary)
	assert.NotEmpty(t, got.Agent.CompletedAt)
}

func TestActiveListExcludesCompleted(t *testing.T) {
	for _, id := range []string{"active-1", "active-2"} {
		resp, _ := doJSON(t, http.MethodPost, "/agents/register", model.RegisterRequest{AgentID: id})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := doJSON(t, http.MethodPost, "/agents/active-1/complete", model.CompleteRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := doJSON(t, http.MethodGet, "/agents/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[model.AgentListResponse](t, data)
	assert.Equal(t, len(list.Agents), list.Count)

	ids := make(map[string]bool)
	for _, a := range list.Agents {
		ids[a.AgentID] = true
	}
	assert.False(t, ids["active-1"], "completed agent must leave the active list")
	assert.True(t, ids["active-2"])

	resp, data = doJSON(t, http.MethodGet, "/agents/all?limit=1000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[model.AgentListResponse](t, data)
	ids = make(map[string]bool)
	for _, a := range all.Agents {
		ids[a.AgentID] = true
	}
	assert.True(t, ids["active-1"], "terminal runs stay listable under /agents/all")
}

func TestRegisterValidation(t *testing.T) {
	resp, data := doJSON(t, http.MethodPost, "/agents/register", model.RegisterRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decode[model.ErrorResponse](t, data)
	assert.Equal(t, "error", errResp.Status)
	assert.Contains(t, errResp.Error, "agent_id")
}

func TestRegisterMalformedBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, testSrv.URL+"/agents/register", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownAgent(t *testing.T) {
	resp, data := doJSON(t, http.MethodGet, "/agents/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp := decode[model.ErrorResponse](t, data)
	assert.Equal(t, "error", errResp.Status)
}

func TestWorkflowRunEndpoints(t *testing.T) {
	resp, data := doJSON(t, http.MethodPost, "/runs/start", model.StartRunRequest{
		RunID:        "http-r1",
		WorkflowName: "deploy",
		ProjectName:  "api",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ack := decode[model.RunAck](t, data)
	assert.Equal(t, "http-r1", ack.RunID)

	// Duplicate run IDs are rejected.
	resp, _ = doJSON(t, http.MethodPost, "/runs/start", model.StartRunRequest{
		RunID:        "http-r1",
		WorkflowName: "deploy",
		ProjectName:  "api",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, "/calls", model.LogCallRequest{
		CallID: "http-c1",
		Prompt: "do the thing",
		RunID:  strPtr("http-r1"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dur := int64(500)
	resp, _ = doJSON(t, http.MethodPost, "/calls/http-c1/complete", model.CompleteCallRequest{
		OutputSummary: strPtr("done"),
		DurationMs:    &dur,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, "/runs/http-r1/artifacts", model.LogArtifactRequest{
		FilePath: "main.go",
		Action:   "created",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, "/runs/http-r1/complete", model.CompleteRunRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = doJSON(t, http.MethodGet, "/runs/http-r1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[model.RunDetailsResponse](t, data)
	require.NotNil(t, details.Workflow)
	assert.Equal(t, "completed", details.Workflow.Status)
	require.Len(t, details.AgentCalls, 1)
	assert.Equal(t, "cursor-agent", details.AgentCalls[0].AgentType, "omitted agent_type defaults")
	assert.Len(t, details.Artifacts, 1)
}

func TestStartRunValidation(t *testing.T) {
	cases := []model.StartRunRequest{
		{WorkflowName: "deploy", ProjectName: "api"},
		{RunID: "v1", ProjectName: "api"},
		{RunID: "v1", WorkflowName: "deploy"},
	}
	for _, body := range cases {
		resp, _ := doJSON(t, http.MethodPost, "/runs/start", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestListRunsProjectFilter(t *testing.T) {
	resp, _ := doJSON(t, http.MethodPost, "/runs/start", model.StartRunRequest{
		RunID: "filter-r1", WorkflowName: "deploy", ProjectName: "filter-project",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := doJSON(t, http.MethodGet, "/runs?project=filter-project", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[model.RunListResponse](t, data)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "filter-r1", list.Runs[0].RunID)
}

func TestRunDetailsUnknownRun(t *testing.T) {
	resp, data := doJSON(t, http.MethodGet, "/runs/never-started", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[model.RunDetailsResponse](t, data)
	assert.Nil(t, details.Workflow)
	assert.Empty(t, details.AgentCalls)
	assert.Empty(t, details.Artifacts)
}

func TestRequestIDPropagated(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, testSrv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-me-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "trace-me-123", resp.Header.Get("X-Request-ID"))
}

func TestRateLimitedMutations(t *testing.T) {
	// Separate server with a tight limiter; the shared one is unlimited.
	limiter := ratelimit.NewMemoryLimiter(0.001, 2)
	defer func() { _ = limiter.Close() }()

	srv := server.New(server.ServerConfig{
		Tracker:             testTracker,
		Audit:               testAudit,
		Logger:              testutil.TestLogger(),
		Limiter:             limiter,
		Version:             "test",
		MaxRequestBodyBytes: 1 * 1024 * 1024,
	})
	limitedSrv := httptest.NewServer(srv.Handler())
	defer limitedSrv.Close()

	post := func(id string) int {
		body, _ := json.Marshal(model.UpdateStatusRequest{CurrentTask: "x"})
		req, err := http.NewRequest(http.MethodPut, limitedSrv.URL+"/agents/"+id+"/status", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("rl-agent"))
	assert.Equal(t, http.StatusOK, post("rl-agent"))
	assert.Equal(t, http.StatusTooManyRequests, post("rl-agent"), "burst of 2 exhausted")
	assert.Equal(t, http.StatusOK, post("rl-other"), "keys are independent")

	// Reads are never throttled.
	resp, err := http.Get(limitedSrv.URL + "/agents/active")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func strPtr(s string) *string { return &s }

// newMCPClient creates an MCP client connected to the test server's /mcp
// endpoint and runs the initialize handshake.
func newMCPClient(t *testing.T) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(testSrv.URL + "/mcp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestMCPListTools(t *testing.T) {
	c := newMCPClient(t)
	ctx := context.Background()

	toolsResult, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	assert.Len(t, toolsResult.Tools, 5)

	toolNames := make(map[string]bool)
	for _, tool := range toolsResult.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{
		"watchtower_register",
		"watchtower_update_status",
		"watchtower_complete",
		"watchtower_get_agent",
		"watchtower_list_active",
	} {
		assert.True(t, toolNames[name], "expected %s tool", name)
	}
}

func TestMCPLifecycle(t *testing.T) {
	c := newMCPClient(t)
	ctx := context.Background()

	registerResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "watchtower_register",
			Arguments: map[string]any{
				"agent_id": "mcp-a1",
				"workflow": "review",
				"metadata": `{"pr": 7}`,
			},
		},
	})
	require.NoError(t, err)
	require.False(t, registerResult.IsError, "register tool returned error: %v", registerResult.Content)

	updateResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "watchtower_update_status",
			Arguments: map[string]any{
				"agent_id":     "mcp-a1",
				"current_task": "reviewing diff",
			},
		},
	})
	require.NoError(t, err)
	require.False(t, updateResult.IsError)

	getResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "watchtower_get_agent",
			Arguments: map[string]any{"agent_id": "mcp-a1"},
		},
	})
	require.NoError(t, err)
	require.False(t, getResult.IsError)
	require.NotEmpty(t, getResult.Content)
	text, ok := mcplib.AsTextContent(getResult.Content[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, "reviewing diff")

	completeResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "watchtower_complete",
			Arguments: map[string]any{
				"agent_id":       "mcp-a1",
				"result_summary": "review posted",
			},
		},
	})
	require.NoError(t, err)
	require.False(t, completeResult.IsError)
}

func TestMCPGetUnknownAgent(t *testing.T) {
	c := newMCPClient(t)

	result, err := c.CallTool(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "watchtower_get_agent",
			Arguments: map[string]any{"agent_id": "mcp-ghost"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPActiveAgentsResource(t *testing.T) {
	c := newMCPClient(t)
	ctx := context.Background()

	resourcesResult, err := c.ListResources(ctx, mcplib.ListResourcesRequest{})
	require.NoError(t, err)
	require.Len(t, resourcesResult.Resources, 1)
	assert.Equal(t, "watchtower://agents/active", resourcesResult.Resources[0].URI)

	readResult, err := c.ReadResource(ctx, mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "watchtower://agents/active"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, readResult.Contents)
}
