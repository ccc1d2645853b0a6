package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// PingResponse is the minimal reachability check.
type PingResponse struct {
	Message string `json:"message"`
}

// HealthHandler serves liveness endpoints.
type HealthHandler struct {
	logger *zap.Logger
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger.Named("health")}
}

// RegisterRoutes attaches the health endpoints to mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()}, h.logger)
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, PingResponse{Message: "pong"}, h.logger)
}
