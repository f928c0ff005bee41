package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/leok974/ApplyLens-sub019/internal/auth"
	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/policy"
	"github.com/leok974/ApplyLens-sub019/internal/utils"
)

// PolicyHandler serves the rule set surface: read the active set, replace
// it atomically. Replacement persists the snapshot before swapping the
// engine, so a crash between the two leaves the durable state ahead of the
// in-memory one, never behind.
type PolicyHandler struct {
	engine *policy.Engine
	store  *policy.Store

	mu      sync.RWMutex
	version int64
	budgets map[string]int
}

// NewPolicyHandler creates a policy handler seeded with the active snapshot.
func NewPolicyHandler(engine *policy.Engine, store *policy.Store, active *models.PolicySnapshot) *PolicyHandler {
	h := &PolicyHandler{engine: engine, store: store}
	if active != nil {
		h.version = active.Version
		h.budgets = active.Budgets
	}
	return h
}

// Budgets returns the active per-agent daily budgets. Wired into the
// budget validator so a policy replace takes effect immediately.
func (h *PolicyHandler) Budgets() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.budgets
}

// GetPolicy handles GET /policy
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	version, budgets := h.version, h.budgets
	h.mu.RUnlock()
	utils.RespondWithJSON(w, http.StatusOK, models.PolicyResponse{
		Version: version,
		Rules:   h.engine.Rules(),
		Budgets: budgets,
	})
}

// ReplacePolicy handles PUT /policy
func (h *PolicyHandler) ReplacePolicy(w http.ResponseWriter, r *http.Request) {
	var req models.ReplacePolicyRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	snap, err := h.store.Replace(r.Context(), req.Rules, req.Budgets, auth.IdentityFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, models.ErrInvalidRuleSet) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		slog.Error("Failed to persist policy snapshot", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to persist policy", nil)
		return
	}

	// Snapshot is durable; now make it the active set.
	if err := h.engine.Replace(snap.Rules); err != nil {
		slog.Error("Failed to swap rule set after persisting snapshot", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to activate policy", nil)
		return
	}
	h.mu.Lock()
	h.version = snap.Version
	h.budgets = snap.Budgets
	h.mu.Unlock()

	slog.Info("Replaced policy rule set", "version", snap.Version, "rules", len(snap.Rules))
	utils.RespondWithJSON(w, http.StatusOK, models.PolicyResponse{
		Version: snap.Version,
		Rules:   snap.Rules,
		Budgets: snap.Budgets,
	})
}
