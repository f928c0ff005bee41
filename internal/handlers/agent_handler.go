package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leok974/ApplyLens-sub019/internal/audit"
	"github.com/leok974/ApplyLens-sub019/internal/events"
	"github.com/leok974/ApplyLens-sub019/internal/executor"
	"github.com/leok974/ApplyLens-sub019/internal/guardrails"
	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/utils"
)

// sseHeartbeat keeps idle event-stream connections alive through proxies
const sseHeartbeat = 15 * time.Second

// AgentHandler serves the run surface: execute, live events, history.
type AgentHandler struct {
	runner *executor.Runner
	audit  *audit.Service
	bus    *events.Bus
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(runner *executor.Runner, auditSvc *audit.Service, bus *events.Bus) *AgentHandler {
	return &AgentHandler{runner: runner, audit: auditSvc, bus: bus}
}

// Execute handles POST /agents/execute
func (h *AgentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Plan.Agent == "" || req.Plan.Action == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "plan.agent and plan.action are required", nil)
		return
	}

	runID, artifacts, err := h.runner.Execute(r.Context(), &req.Plan, req.ApprovalID)
	if err != nil {
		var violation *guardrails.Violation
		if errors.As(err, &violation) {
			utils.RespondWithError(w, violationStatus(violation), violation.Message, violationDetails(violation))
			return
		}
		var actionErr *executor.ActionError
		if errors.As(err, &actionErr) {
			utils.RespondWithError(w, http.StatusBadGateway, actionErr.Error(), map[string]interface{}{
				"run_id": runID.String(),
			})
			return
		}
		slog.Error("Run failed", "run_id", runID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "run failed", nil)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, models.ExecuteResponse{
		RunID:     runID.String(),
		Status:    models.RunSuccess,
		Artifacts: artifacts,
	})
}

func violationStatus(v *guardrails.Violation) int {
	switch v.Type {
	case guardrails.MissingParameter:
		return http.StatusBadRequest
	case guardrails.PolicyDenied, guardrails.ApprovalRequired:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func violationDetails(v *guardrails.Violation) map[string]interface{} {
	details := map[string]interface{}{"violation_type": v.Type}
	for key, value := range v.Details {
		details[key] = value
	}
	return details
}

// Events handles GET /agents/events as a server-sent event stream. Each
// connection holds its own bounded subscriber queue; disconnecting cleans
// the subscriber up.
func (h *AgentHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe(0)
	defer sub.Close()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("Failed to marshal agent event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

// History handles GET /agents/history with limit/offset pagination and
// agent_type/status/user/start_date/end_date filters.
func (h *AgentHandler) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := audit.Filters{}

	if v := query.Get("agent_type"); v != "" {
		filters.Agent = &v
	}
	if v := query.Get("status"); v != "" {
		filters.Status = &v
	}
	if v := query.Get("user"); v != "" {
		filters.User = &v
	}
	if v := query.Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "start_date must be RFC3339", nil)
			return
		}
		filters.StartDate = &t
	}
	if v := query.Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "end_date must be RFC3339", nil)
			return
		}
		filters.EndDate = &t
	}
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		filters.Limit = n
	}
	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "offset must be a non-negative integer", nil)
			return
		}
		filters.Offset = n
	}

	records, total, err := h.audit.Query(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to query run history", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to query history", nil)
		return
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}
	utils.RespondWithJSON(w, http.StatusOK, models.HistoryResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  filters.Offset,
	})
}
