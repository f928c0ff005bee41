package handlers

import (
	"net/http"

	"github.com/leok974/ApplyLens-sub019/internal/utils"
)

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
