package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/internal/middleware"
	"meetpoll/internal/service"
	"meetpoll/pkg/errors"
	"meetpoll/pkg/logger"
)

// CalendarHandler serves the calendar adapter endpoints. Every route here
// sits behind the auth middleware, so the context always carries a user and
// the raw access token.
type CalendarHandler struct {
	calendar service.CalendarService
	logger   *logger.Logger
}

// NewCalendarHandler creates a new calendar handler
func NewCalendarHandler(cal service.CalendarService, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: cal, logger: log}
}

// Availability handles GET /api/calendar/availability?start=&end=
func (h *CalendarHandler) Availability(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	days, err := h.calendar.FetchAvailability(r.Context(), middleware.AccessTokenFromContext(r.Context()), start, end)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days": days,
	})
}

// Connect handles POST /api/calendar/connect
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)

	if err := h.calendar.Connect(ctx, middleware.AccessTokenFromContext(ctx), user.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.CalendarStatusResponse{Connected: true})
}

// Disconnect handles DELETE /api/calendar/connect
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	if err := h.calendar.Disconnect(r.Context(), user.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.CalendarStatusResponse{Connected: false})
}

// Status handles GET /api/calendar/status
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	connected, err := h.calendar.Connected(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.CalendarStatusResponse{Connected: connected})
}

// CreateEvent handles POST /api/calendar/events
func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errors.NewValidationError("Invalid request body", nil))
		return
	}

	event, err := h.calendar.CreateEvent(r.Context(), middleware.AccessTokenFromContext(r.Context()), &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.NewValidationError("Query parameter is required", map[string]interface{}{
			"parameter": name,
		})
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError("Query parameter must be an RFC 3339 timestamp", map[string]interface{}{
			"parameter": name,
		})
	}
	return t, nil
}
