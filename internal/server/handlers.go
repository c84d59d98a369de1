package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/activationfn/watchtower/internal/auditlog"
	"github.com/activationfn/watchtower/internal/model"
	"github.com/activationfn/watchtower/internal/registry"
)

// Field defaults applied when a request body omits them. These are part of
// the wire contract, not arbitrary fallbacks: callers that predate the
// richer fields still get coherent records.
const (
	defaultAgentType      = "cursor-agent"
	defaultWorkflow       = "unknown"
	defaultProject        = "unknown"
	defaultUpdateStatus   = model.StatusRunning
	defaultTerminalStatus = model.StatusCompleted
	defaultListLimit      = 100
	defaultRunListLimit   = 50
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	tracker             *registry.Tracker
	audit               *auditlog.Log
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Tracker             *registry.Tracker
	Audit               *auditlog.Log
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		tracker:             d.Tracker,
		audit:               d.Audit,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// writeInternalError logs the underlying error and responds with a generic
// message. Store errors always surface as a 500; nothing is retried.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, msg+": "+err.Error())
}

// HandleRoot handles GET /.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.ServiceDescriptor{
		Service: "watchtower",
		Version: h.version,
		Endpoints: []model.EndpointDescriptor{
			{Path: "/agents/active", Method: http.MethodGet},
			{Path: "/agents/all", Method: http.MethodGet},
			{Path: "/agents/{agent_id}", Method: http.MethodGet},
			{Path: "/agents/register", Method: http.MethodPost},
			{Path: "/agents/{agent_id}/status", Method: http.MethodPut},
			{Path: "/agents/{agent_id}/complete", Method: http.MethodPost},
			{Path: "/runs", Method: http.MethodGet},
			{Path: "/runs/start", Method: http.MethodPost},
			{Path: "/runs/{run_id}", Method: http.MethodGet},
			{Path: "/runs/{run_id}/complete", Method: http.MethodPost},
			{Path: "/runs/{run_id}/artifacts", Method: http.MethodPost},
			{Path: "/calls", Method: http.MethodPost},
			{Path: "/calls/{call_id}/complete", Method: http.MethodPost},
		},
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	redisStatus := "connected"
	if err := h.tracker.Ping(r.Context()); err != nil {
		redisStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	sqliteStatus := "connected"
	if err := h.audit.Ping(r.Context()); err != nil {
		sqliteStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status: status,
		Redis:  redisStatus,
		SQLite: sqliteStatus,
		Uptime: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleActiveAgents handles GET /agents/active.
func (h *Handlers) HandleActiveAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.tracker.ListActive(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list active agents", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentListResponse{
		Status: "ok",
		Count:  len(agents),
		Agents: agents,
	})
}

// HandleAllAgents handles GET /agents/all.
func (h *Handlers) HandleAllAgents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)
	agents, err := h.tracker.ListAll(r.Context(), limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to list agents", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentListResponse{
		Status: "ok",
		Count:  len(agents),
		Agents: agents,
	})
}

// HandleGetAgent handles GET /agents/{agent_id}.
func (h *Handlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	run, err := h.tracker.Get(r.Context(), agentID)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to get agent", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentResponse{Status: "ok", Agent: run})
}

// HandleRegisterAgent handles POST /agents/register.
func (h *Handlers) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, r, http.StatusBadRequest, "agent_id required")
		return
	}

	if req.AgentType == "" {
		req.AgentType = defaultAgentType
	}
	if req.Workflow == "" {
		req.Workflow = defaultWorkflow
	}
	if req.Project == "" {
		req.Project = defaultProject
	}

	if err := h.tracker.Register(r.Context(), req.AgentID, req.AgentType, req.Workflow, req.Project, req.Metadata); err != nil {
		h.writeInternalError(w, r, "failed to register agent", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentAck{Status: "ok", AgentID: req.AgentID})
}

// HandleUpdateAgentStatus handles PUT /agents/{agent_id}/status.
func (h *Handlers) HandleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	var req model.UpdateStatusRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = defaultUpdateStatus
	}

	if err := h.tracker.UpdateStatus(r.Context(), agentID, req.Status, req.CurrentTask, req.Progress); err != nil {
		h.writeInternalError(w, r, "failed to update agent status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentAck{Status: "ok", AgentID: agentID})
}

// HandleCompleteAgent handles POST /agents/{agent_id}/complete.
func (h *Handlers) HandleCompleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	var req model.CompleteRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = defaultTerminalStatus
	}

	if err := h.tracker.Complete(r.Context(), agentID, req.Status, req.ResultSummary, req.Error); err != nil {
		h.writeInternalError(w, r, "failed to complete agent", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.AgentAck{Status: "ok", AgentID: agentID})
}
