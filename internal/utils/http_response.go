package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// RespondWithJSON sends a JSON response with the given status code
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers already went out; log and move on.
		slog.Error("Failed to encode JSON response", "error", err, "statusCode", statusCode)
	}
}

// RespondWithError sends a JSON error envelope with the given status code
func RespondWithError(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	RespondWithJSON(w, statusCode, models.ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// DecodeJSONBody decodes a request body into dst, rejecting unknown fields.
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
