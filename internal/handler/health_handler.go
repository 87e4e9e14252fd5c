package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"meetpoll/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Database  string    `json:"database"`
	Cache     string    `json:"cache,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "meetpoll",
		Database:  "up",
	}

	status := http.StatusOK
	if err := h.container.DB.Health(r.Context()); err != nil {
		logger.WithError(err).Error("Snapshot database health check failed")
		response.Status = "degraded"
		response.Database = "down"
		status = http.StatusServiceUnavailable
	}

	if h.container.HasRedis() {
		response.Cache = "up"
		if err := h.container.RedisClient.Health(r.Context()); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			// Caching is optional, so a dead Redis degrades but does not fail.
			response.Status = "degraded"
			response.Cache = "down"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode health check response")
	}
}
