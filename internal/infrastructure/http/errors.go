package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON error envelope returned by the service endpoints.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// WriteError writes the standard error envelope. The status code is committed
// before encoding, so an encoding failure can only be logged.
func WriteError(w http.ResponseWriter, statusCode int, message string, details []string, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := ErrorResponse{Error: message, Details: details}
	if err := json.NewEncoder(w).Encode(body); err != nil && log != nil {
		log.Error("failed to encode error response", "error", err, "status", statusCode)
	}
}
