// Package mcp implements the Model Context Protocol server for Watchtower.
//
// It exposes the run registry to MCP-capable agents: an agent process can
// register itself, heartbeat, and report completion over the same transport
// it already uses for its tools, with no extra HTTP client. The tools map
// one-to-one onto registry operations and add no semantics of their own.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/activationfn/watchtower/internal/registry"
)

// Server wraps the MCP server with Watchtower's registry.
type Server struct {
	mcpServer *mcpserver.MCPServer
	tracker   *registry.Tracker
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(tracker *registry.Tracker, logger *slog.Logger, version string) *Server {
	s := &Server{
		tracker: tracker,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"watchtower",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// watchtower://agents/active — live view of every non-terminal agent.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"watchtower://agents/active",
			"Active Agents",
			mcplib.WithResourceDescription("All agents currently registered as running"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleActiveAgents,
	)
}

func (s *Server) handleActiveAgents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	agents, err := s.tracker.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list active agents: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"count":  len(agents),
		"agents": agents,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal active agents: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

// notFoundResult distinguishes a missing agent from a transport failure so
// callers don't retry lookups that can never succeed.
func notFoundResult(agentID string) *mcplib.CallToolResult {
	return errorResult(fmt.Sprintf("agent not found: %s", agentID))
}

func (s *Server) handleRegister(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return errorResult("agent_id is required"), nil
	}

	var metadata any
	if raw := request.GetString("metadata", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return errorResult(fmt.Sprintf("metadata is not valid JSON: %v", err)), nil
		}
	}

	err := s.tracker.Register(ctx,
		agentID,
		request.GetString("agent_type", "cursor-agent"),
		request.GetString("workflow", "unknown"),
		request.GetString("project", "unknown"),
		metadata,
	)
	if err != nil {
		return errorResult(fmt.Sprintf("register failed: %v", err)), nil
	}
	return jsonResult(map[string]string{"status": "ok", "agent_id": agentID}), nil
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return errorResult("agent_id is required"), nil
	}

	var progress any
	if raw := request.GetString("progress", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &progress); err != nil {
			return errorResult(fmt.Sprintf("progress is not valid JSON: %v", err)), nil
		}
	}

	err := s.tracker.UpdateStatus(ctx,
		agentID,
		request.GetString("status", "running"),
		request.GetString("current_task", ""),
		progress,
	)
	if err != nil {
		return errorResult(fmt.Sprintf("status update failed: %v", err)), nil
	}
	return jsonResult(map[string]string{"status": "ok", "agent_id": agentID}), nil
}

func (s *Server) handleComplete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return errorResult("agent_id is required"), nil
	}

	err := s.tracker.Complete(ctx,
		agentID,
		request.GetString("status", "completed"),
		request.GetString("result_summary", ""),
		request.GetString("error", ""),
	)
	if err != nil {
		return errorResult(fmt.Sprintf("complete failed: %v", err)), nil
	}
	return jsonResult(map[string]string{"status": "ok", "agent_id": agentID}), nil
}

func (s *Server) handleGetAgent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return errorResult("agent_id is required"), nil
	}

	run, err := s.tracker.Get(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		return notFoundResult(agentID), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleListActive(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agents, err := s.tracker.ListActive(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"count": len(agents), "agents": agents}), nil
}
