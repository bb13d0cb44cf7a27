package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/compose-network/ledger-harness/server/api/middleware"
)

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a standardized error response with request tracking.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	body := map[string]any{
		"code":       code,
		"message":    message,
		"request_id": middleware.RequestIDFrom(r.Context()),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if details != nil {
		body["details"] = details
	}
	WriteJSON(w, status, map[string]any{"error": body})
}
