package server

import (
	"net/http"

	"github.com/activationfn/watchtower/internal/auditlog"
	"github.com/activationfn/watchtower/internal/model"
)

// HandleStartRun handles POST /runs/start.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req model.StartRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RunID == "" {
		writeError(w, r, http.StatusBadRequest, "run_id required")
		return
	}
	if req.WorkflowName == "" {
		writeError(w, r, http.StatusBadRequest, "workflow_name required")
		return
	}
	if req.ProjectName == "" {
		writeError(w, r, http.StatusBadRequest, "project_name required")
		return
	}

	err := h.audit.StartWorkflowRun(r.Context(), req.RunID, req.WorkflowName, req.ProjectName, req.Model, req.Flags)
	if auditlog.IsConflict(err) {
		writeError(w, r, http.StatusConflict, "run_id already exists")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to start workflow run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RunAck{Status: "ok", RunID: req.RunID})
}

// HandleCompleteRun handles POST /runs/{run_id}/complete. Completing an
// unknown run is a success: the update affects zero rows by design.
func (h *Handlers) HandleCompleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	var req model.CompleteRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = defaultTerminalStatus
	}

	if err := h.audit.CompleteWorkflowRun(r.Context(), runID, req.Status, req.ErrorMessage, req.Notes); err != nil {
		h.writeInternalError(w, r, "failed to complete workflow run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RunAck{Status: "ok", RunID: runID})
}

// HandleLogCall handles POST /calls.
func (h *Handlers) HandleLogCall(w http.ResponseWriter, r *http.Request) {
	var req model.LogCallRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CallID == "" {
		writeError(w, r, http.StatusBadRequest, "call_id required")
		return
	}
	if req.Prompt == "" {
		writeError(w, r, http.StatusBadRequest, "prompt required")
		return
	}
	if req.AgentType == "" {
		req.AgentType = defaultAgentType
	}

	err := h.audit.LogAgentCall(r.Context(), req.CallID, req.AgentType, req.Prompt, req.RunID, req.Model)
	if auditlog.IsConflict(err) {
		writeError(w, r, http.StatusConflict, "call_id already exists")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to log agent call", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.CallAck{Status: "ok", CallID: req.CallID})
}

// HandleCompleteCall handles POST /calls/{call_id}/complete.
func (h *Handlers) HandleCompleteCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	var req model.CompleteCallRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = defaultTerminalStatus
	}

	if err := h.audit.CompleteAgentCall(r.Context(), callID, req.Status, req.OutputSummary, req.ErrorMessage, req.DurationMs); err != nil {
		h.writeInternalError(w, r, "failed to complete agent call", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.CallAck{Status: "ok", CallID: callID})
}

// HandleLogArtifact handles POST /runs/{run_id}/artifacts.
func (h *Handlers) HandleLogArtifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	var req model.LogArtifactRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FilePath == "" {
		writeError(w, r, http.StatusBadRequest, "file_path required")
		return
	}
	if req.Action == "" {
		writeError(w, r, http.StatusBadRequest, "action required")
		return
	}

	if err := h.audit.LogArtifact(r.Context(), runID, req.FilePath, req.Action, req.Notes); err != nil {
		h.writeInternalError(w, r, "failed to log artifact", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RunAck{Status: "ok", RunID: runID})
}

// HandleListRuns handles GET /runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := queryLimit(r, defaultRunListLimit)

	runs, err := h.audit.GetWorkflowRuns(r.Context(), project, limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to list workflow runs", err)
		return
	}
	if runs == nil {
		runs = []model.WorkflowRun{}
	}
	writeJSON(w, r, http.StatusOK, model.RunListResponse{
		Status: "ok",
		Count:  len(runs),
		Runs:   runs,
	})
}

// HandleRunDetails handles GET /runs/{run_id}. An unknown run is not a 404:
// the workflow field is omitted and the collections are empty, which keeps
// the composite read distinct from a transport error.
func (h *Handlers) HandleRunDetails(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	details, err := h.audit.GetRunDetails(r.Context(), runID)
	if err != nil {
		h.writeInternalError(w, r, "failed to get run details", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RunDetailsResponse{
		Status:     "ok",
		Workflow:   details.Workflow,
		AgentCalls: details.AgentCalls,
		Artifacts:  details.Artifacts,
	})
}
