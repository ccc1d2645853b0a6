// Package handlers exposes the transformation pipeline over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status. Encoding failures are logged
// but cannot be reported to the client once the header is out.
func WriteJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// WriteError sends a JSON error body.
func WriteError(w http.ResponseWriter, status int, message string, logger *zap.Logger) {
	WriteJSON(w, status, ErrorResponse{Error: message}, logger)
}
