package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/activationfn/watchtower/internal/auditlog"
	"github.com/activationfn/watchtower/internal/ratelimit"
	"github.com/activationfn/watchtower/internal/registry"
)

// Server is the Watchtower HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// MCPServer is optional (nil = MCP transport disabled).
type ServerConfig struct {
	// Required dependencies.
	Tracker *registry.Tracker
	Audit   *auditlog.Log
	Logger  *slog.Logger

	// Optional dependencies.
	MCPServer *mcpserver.MCPServer
	Limiter   ratelimit.Limiter // nil = no rate limiting

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Tracker:             cfg.Tracker,
		Audit:               cfg.Audit,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Mutation routes go through the rate limiter; reads stay unthrottled so
	// dashboards keep working while a runaway writer is being shed.
	limited := func(hf http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return hf
		}
		return ratelimit.Middleware(cfg.Limiter, ratelimit.AgentKey, cfg.Logger, hf)
	}

	mux := http.NewServeMux()

	// Service descriptor and health (the {$} pattern keeps / from matching
	// every unregistered path).
	mux.HandleFunc("GET /{$}", h.HandleRoot)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Run registry.
	mux.HandleFunc("GET /agents/active", h.HandleActiveAgents)
	mux.HandleFunc("GET /agents/all", h.HandleAllAgents)
	mux.HandleFunc("GET /agents/{agent_id}", h.HandleGetAgent)
	mux.Handle("POST /agents/register", limited(h.HandleRegisterAgent))
	mux.Handle("PUT /agents/{agent_id}/status", limited(h.HandleUpdateAgentStatus))
	mux.Handle("POST /agents/{agent_id}/complete", limited(h.HandleCompleteAgent))

	// Audit log.
	mux.Handle("POST /runs/start", limited(h.HandleStartRun))
	mux.Handle("POST /runs/{run_id}/complete", limited(h.HandleCompleteRun))
	mux.Handle("POST /runs/{run_id}/artifacts", limited(h.HandleLogArtifact))
	mux.HandleFunc("GET /runs", h.HandleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", h.HandleRunDetails)
	mux.Handle("POST /calls", limited(h.HandleLogCall))
	mux.Handle("POST /calls/{call_id}/complete", limited(h.HandleCompleteCall))

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
