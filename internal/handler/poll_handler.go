package handler

import (
	"encoding/json"
	"net/http"

	"meetpoll/internal/domain"
	"meetpoll/internal/middleware"
	"meetpoll/internal/service"
	"meetpoll/internal/store"
	"meetpoll/pkg/errors"
	"meetpoll/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// PollHandler serves the poll lifecycle endpoints.
type PollHandler struct {
	store    *store.Store
	cache    *service.CacheService
	auth     service.AuthService
	calendar service.CalendarService
	logger   *logger.Logger
}

// NewPollHandler creates a new poll handler
func NewPollHandler(pollStore *store.Store, cache *service.CacheService, auth service.AuthService, cal service.CalendarService, log *logger.Logger) *PollHandler {
	return &PollHandler{
		store:    pollStore,
		cache:    cache,
		auth:     auth,
		calendar: cal,
		logger:   log,
	}
}

// Create handles POST /api/polls
func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req domain.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errors.NewValidationError("Invalid request body", nil))
		return
	}

	poll, err := h.store.CreatePoll(r.Context(), user, &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, poll)
}

// List handles GET /api/polls. It returns the caller's own polls.
func (h *PollHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	polls := h.store.ListPollsByCreator(r.Context(), user.ID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"polls": polls,
		"total": len(polls),
	})
}

// Get handles GET /api/polls/{pollID}
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	poll := h.store.GetPoll(r.Context(), chi.URLParam(r, "pollID"))
	if poll == nil {
		respondError(w, r, h.logger, errors.NewNotFoundError("Poll not found"))
		return
	}
	respondJSON(w, http.StatusOK, poll)
}

// Results handles GET /api/polls/{pollID}/results. Tallies are cheap but
// hot while a poll is being shared around, so they go through the results
// cache and carry an ETag.
func (h *PollHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.cache.GetResultsWithCache(r.Context(), chi.URLParam(r, "pollID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	etag := generateETag(results)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=10")
	respondJSON(w, http.StatusOK, results)
}

// SubmitVote handles POST /api/polls/{pollID}/votes. Voting does not
// require a signed-in user; voters identify themselves by name and email.
func (h *PollHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errors.NewValidationError("Invalid request body", nil))
		return
	}

	vote, err := h.store.SubmitVote(r.Context(), pollID, &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.cache.InvalidateResults(r.Context(), pollID)
	respondJSON(w, http.StatusCreated, vote)
}

// Finalize handles POST /api/polls/{pollID}/finalize
func (h *PollHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	if err := h.requireCreator(r, pollID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	poll, err := h.store.FinalizePoll(r.Context(), pollID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.cache.InvalidateResults(r.Context(), pollID)
	respondJSON(w, http.StatusOK, poll)
}

// Schedule handles POST /api/polls/{pollID}/schedule. It finalizes the
// poll if it is still active and books the winning slot on the creator's
// calendar, inviting everyone who voted.
func (h *PollHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pollID := chi.URLParam(r, "pollID")
	if err := h.requireCreator(r, pollID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	poll := h.store.GetPoll(ctx, pollID)
	if poll.Status == domain.PollStatusActive {
		finalized, err := h.store.FinalizePoll(ctx, pollID)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		h.cache.InvalidateResults(ctx, pollID)
		poll = finalized
	}
	if poll.Status != domain.PollStatusCompleted {
		respondError(w, r, h.logger, errors.NewConflictError("Cannot schedule a cancelled poll"))
		return
	}

	slot := poll.Slot(poll.WinningTimeSlotID)
	if slot == nil {
		respondError(w, r, h.logger, errors.NewInternalError("Winning slot is missing from the poll", nil))
		return
	}

	attendees, err := h.store.Attendees(ctx, pollID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	event, err := h.calendar.CreateEvent(ctx, middleware.AccessTokenFromContext(ctx), &domain.CreateEventRequest{
		Title:       poll.Title,
		Description: poll.Description,
		StartTime:   slot.StartTime,
		EndTime:     slot.EndTime,
		Attendees:   attendees,
		MeetingType: poll.MeetingType,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.SchedulePollResponse{
		Poll:    poll,
		EventID: event.EventID,
	})
}

// Cancel handles POST /api/polls/{pollID}/cancel
func (h *PollHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	if err := h.requireCreator(r, pollID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	poll, err := h.store.CancelPoll(r.Context(), pollID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.cache.InvalidateResults(r.Context(), pollID)
	respondJSON(w, http.StatusOK, poll)
}

// Share handles GET /api/polls/{pollID}/share. The issued token lets
// anonymous voters reach the poll through the public routes until the poll
// expires.
func (h *PollHandler) Share(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	if err := h.requireCreator(r, pollID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	poll := h.store.GetPoll(r.Context(), pollID)
	token, err := h.auth.IssueShareToken(poll.ID, poll.ExpiresAt)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.SharePollResponse{
		PollID:    poll.ID,
		Token:     token,
		ExpiresAt: poll.ExpiresAt,
	})
}

// GetPublic handles GET /api/public/polls/{token}
func (h *PollHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	poll, err := h.pollFromShareToken(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, poll)
}

// SubmitPublicVote handles POST /api/public/polls/{token}/votes
func (h *PollHandler) SubmitPublicVote(w http.ResponseWriter, r *http.Request) {
	poll, err := h.pollFromShareToken(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.logger, errors.NewValidationError("Invalid request body", nil))
		return
	}

	vote, err := h.store.SubmitVote(r.Context(), poll.ID, &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.cache.InvalidateResults(r.Context(), poll.ID)
	respondJSON(w, http.StatusCreated, vote)
}

func (h *PollHandler) pollFromShareToken(r *http.Request) (*domain.Poll, error) {
	pollID, err := h.auth.ValidateShareToken(chi.URLParam(r, "token"))
	if err != nil {
		return nil, err
	}

	poll := h.store.GetPoll(r.Context(), pollID)
	if poll == nil {
		return nil, errors.NewNotFoundError("Poll not found")
	}
	return poll, nil
}

// requireCreator checks that the poll exists and belongs to the caller.
func (h *PollHandler) requireCreator(r *http.Request, pollID string) error {
	poll := h.store.GetPoll(r.Context(), pollID)
	if poll == nil {
		return errors.NewNotFoundError("Poll not found")
	}

	user := middleware.UserFromContext(r.Context())
	if user == nil || poll.CreatedBy.ID != user.ID {
		return errors.NewAuthorizationError("Only the poll creator may do this")
	}
	return nil
}
