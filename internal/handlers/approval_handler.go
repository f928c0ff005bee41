package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leok974/ApplyLens-sub019/internal/approval"
	"github.com/leok974/ApplyLens-sub019/internal/auth"
	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/utils"
)

// ApprovalHandler serves the approval workflow surface
type ApprovalHandler struct {
	service *approval.Service
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(service *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// CreateApproval handles POST /approvals
func (h *ApprovalHandler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req models.CreateApprovalRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	record, err := h.service.Request(r.Context(), req)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, record)
}

// ListApprovals handles GET /approvals?status=
func (h *ApprovalHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		slog.Error("Failed to list approval requests", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list approvals", nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

// DecideApproval handles POST /approvals/{id}/approve. The decision body
// may carry approved or rejected; the approver defaults to the
// authenticated identity.
func (h *ApprovalHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.DecideApprovalRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	approver := req.Approver
	if approver == "" {
		approver = auth.IdentityFromContext(r.Context())
	}

	record, err := h.service.Decide(r.Context(), id, req.Decision, approver, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrApprovalNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, models.ErrApprovalNotPending), errors.Is(err, models.ErrApprovalExpired):
			utils.RespondWithError(w, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, models.ErrInvalidDecision):
			utils.RespondWithError(w, http.StatusBadRequest, err.Error(), nil)
		default:
			slog.Error("Failed to decide approval", "id", id, "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "failed to decide approval", nil)
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, record)
}

// VerifyApproval handles POST /approvals/{id}/verify
func (h *ApprovalHandler) VerifyApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.VerifySignatureRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.VerifySignatureResponse{
		Valid: h.service.Verify(r.Context(), id, req.Signature),
	})
}
