package handler

import (
	"net/http"

	"meetpoll/internal/middleware"
	"meetpoll/pkg/logger"
)

// AuthHandler serves identity endpoints.
type AuthHandler struct {
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(log *logger.Logger) *AuthHandler {
	return &AuthHandler{logger: log}
}

// GetProfile handles GET /api/user/profile. The auth middleware already
// resolved the token, so this just echoes the typed user back.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, middleware.UserFromContext(r.Context()))
}
