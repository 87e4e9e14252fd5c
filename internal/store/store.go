package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/pkg/database"
	apperrors "meetpoll/pkg/errors"
	"meetpoll/pkg/logger"

	"github.com/google/uuid"
)

// PollExpiry is how long a poll accepts votes after creation.
const PollExpiry = 7 * 24 * time.Hour

// snapshotKey is where the full poll collection lives in the snapshot DB.
const snapshotKey = "polls"

// Store owns the poll collection and is its only writer. Every mutation
// runs under one mutex and persists the full collection before returning,
// so concurrent callers cannot interleave partial writes. Reads hand out
// deep copies.
type Store struct {
	mu     sync.Mutex
	db     *database.SnapshotDB
	logger *logger.Logger

	// polls keeps insertion order; index maps poll id to position.
	polls []*domain.Poll
	index map[string]int
}

// New creates a store and rehydrates the poll collection from the snapshot
// database.
func New(ctx context.Context, db *database.SnapshotDB, log *logger.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: log,
		index:  make(map[string]int),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	log.WithField("polls", len(s.polls)).Info("Poll store loaded")
	return s, nil
}

// load reads the persisted collection. Time fields revive through RFC 3339
// JSON encoding.
func (s *Store) load(ctx context.Context) error {
	data, err := s.db.Get(ctx, snapshotKey)
	if err != nil {
		return fmt.Errorf("failed to load poll snapshot: %w", err)
	}
	if data == nil {
		return nil
	}

	var polls []*domain.Poll
	if err := json.Unmarshal(data, &polls); err != nil {
		return fmt.Errorf("failed to decode poll snapshot: %w", err)
	}

	s.polls = polls
	for i, p := range polls {
		s.index[p.ID] = i
	}
	return nil
}

// persistLocked serializes the full collection. Callers must hold s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.polls)
	if err != nil {
		return apperrors.NewInternalError("Failed to encode poll collection", err)
	}
	if err := s.db.Put(ctx, snapshotKey, data); err != nil {
		return apperrors.NewInternalError("Failed to persist poll collection", err)
	}
	return nil
}

// CreatePoll creates an active poll owned by creator with the given ordered
// time slots. Expiration is fixed at creation + 7 days.
func (s *Store) CreatePoll(ctx context.Context, creator *domain.User, req *domain.CreatePollRequest) (*domain.Poll, error) {
	if creator == nil || creator.ID == "" {
		return nil, apperrors.NewAuthorizationError("A signed-in user is required to create a poll")
	}
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now()
	poll := &domain.Poll{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   *creator,
		TimeSlots:   append([]domain.TimeSlot(nil), req.TimeSlots...),
		Votes:       []domain.Vote{},
		Created:     now,
		ExpiresAt:   now.Add(PollExpiry),
		MeetingType: req.MeetingType,
		Status:      domain.PollStatusActive,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls = append(s.polls, poll)
	s.index[poll.ID] = len(s.polls) - 1

	if err := s.persistLocked(ctx); err != nil {
		// Roll the in-memory append back so memory matches disk.
		s.polls = s.polls[:len(s.polls)-1]
		delete(s.index, poll.ID)
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"poll_id":    poll.ID,
		"creator_id": creator.ID,
		"slots":      len(poll.TimeSlots),
	}).Info("Poll created")

	return poll.Clone(), nil
}

func validateCreateRequest(req *domain.CreatePollRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("Poll title is required", nil)
	}
	if len(req.TimeSlots) == 0 {
		return apperrors.NewValidationError("At least one time slot is required", nil)
	}
	if !domain.ValidMeetingType(req.MeetingType) {
		return apperrors.NewValidationError("Unknown meeting type", map[string]interface{}{
			"meeting_type": string(req.MeetingType),
		})
	}
	for i := range req.TimeSlots {
		slot := &req.TimeSlots[i]
		if !slot.StartTime.Before(slot.EndTime) {
			return apperrors.NewValidationError("Time slot start must be before its end", map[string]interface{}{
				"time_slot_id": slot.ID,
			})
		}
		if slot.ID == "" {
			slot.ID = "slot-" + slot.StartTime.Format(time.RFC3339)
		}
	}
	return nil
}

// GetPoll returns a copy of the poll, or nil when it does not exist.
// Absence is not an error here; callers decide.
func (s *Store) GetPoll(ctx context.Context, id string) *domain.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return s.polls[i].Clone()
}

// ListPolls returns copies of all polls in insertion order.
func (s *Store) ListPolls(ctx context.Context) []*domain.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p.Clone())
	}
	return out
}

// ListPollsByCreator returns copies of the polls created by the given user.
func (s *Store) ListPollsByCreator(ctx context.Context, userID string) []*domain.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Poll
	for _, p := range s.polls {
		if p.CreatedBy.ID == userID {
			out = append(out, p.Clone())
		}
	}
	return out
}

// SubmitVote appends a vote to an active poll. The slot must be one of the
// poll's own time slots. The voter id is generated fresh per vote.
func (s *Store) SubmitVote(ctx context.Context, pollID string, req *domain.VoteRequest) (*domain.Vote, error) {
	if strings.TrimSpace(req.VoterName) == "" {
		return nil, apperrors.NewValidationError("Voter name is required", nil)
	}
	if !strings.Contains(req.VoterEmail, "@") {
		return nil, apperrors.NewValidationError("A valid voter email is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	poll, err := s.pollLocked(pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != domain.PollStatusActive {
		return nil, apperrors.NewConflictError("Cannot vote on a non-active poll")
	}
	if poll.Slot(req.TimeSlotID) == nil {
		return nil, apperrors.NewValidationError("Time slot does not belong to this poll", map[string]interface{}{
			"time_slot_id": req.TimeSlotID,
		})
	}

	vote := domain.Vote{
		VoterID:    uuid.NewString(),
		VoterName:  strings.TrimSpace(req.VoterName),
		VoterEmail: strings.ToLower(strings.TrimSpace(req.VoterEmail)),
		TimeSlotID: req.TimeSlotID,
		CreatedAt:  time.Now(),
	}
	poll.Votes = append(poll.Votes, vote)

	if err := s.persistLocked(ctx); err != nil {
		poll.Votes = poll.Votes[:len(poll.Votes)-1]
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"poll_id":      pollID,
		"time_slot_id": req.TimeSlotID,
		"voter_id":     vote.VoterID,
	}).Info("Vote submitted")

	return &vote, nil
}

// FinalizePoll closes voting on an active poll and records the winning
// slot. Every slot starts at zero; the winner is the first slot in
// insertion order holding the strictly greatest count, so ties resolve to
// the earlier slot and a voteless poll completes with its first slot.
// Exactly one finalize may succeed per poll.
func (s *Store) FinalizePoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, err := s.pollLocked(pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != domain.PollStatusActive {
		return nil, apperrors.NewConflictError("Cannot finalize a non-active poll")
	}

	counts := tally(poll)
	best := -1
	winningID := ""
	for _, slot := range poll.TimeSlots {
		if counts[slot.ID] > best {
			best = counts[slot.ID]
			winningID = slot.ID
		}
	}

	prevStatus, prevWinner := poll.Status, poll.WinningTimeSlotID
	poll.Status = domain.PollStatusCompleted
	poll.WinningTimeSlotID = winningID

	if err := s.persistLocked(ctx); err != nil {
		poll.Status, poll.WinningTimeSlotID = prevStatus, prevWinner
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"poll_id":      pollID,
		"winning_slot": winningID,
		"votes":        len(poll.Votes),
	}).Info("Poll finalized")

	return poll.Clone(), nil
}

// CancelPoll cancels a poll unconditionally: unlike voting and finalizing
// it does not require the poll to be active, so a completed poll can still
// be cancelled and its status overwritten.
func (s *Store) CancelPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, err := s.pollLocked(pollID)
	if err != nil {
		return nil, err
	}

	prevStatus := poll.Status
	poll.Status = domain.PollStatusCancelled

	if err := s.persistLocked(ctx); err != nil {
		poll.Status = prevStatus
		return nil, err
	}

	s.logger.WithField("poll_id", pollID).Info("Poll cancelled")
	return poll.Clone(), nil
}

// Results computes the tally projection for a poll. Vote counts include
// every vote record; the participant count de-duplicates voters by email.
func (s *Store) Results(ctx context.Context, pollID string) (*domain.PollResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, err := s.pollLocked(pollID)
	if err != nil {
		return nil, err
	}

	counts := tally(poll)
	slots := make([]domain.SlotTally, 0, len(poll.TimeSlots))
	for _, slot := range poll.TimeSlots {
		slots = append(slots, domain.SlotTally{TimeSlot: slot, VoteCount: counts[slot.ID]})
	}

	participants := make(map[string]struct{}, len(poll.Votes))
	for _, v := range poll.Votes {
		participants[v.VoterEmail] = struct{}{}
	}

	return &domain.PollResults{
		PollID:            poll.ID,
		Status:            poll.Status,
		Slots:             slots,
		TotalVotes:        len(poll.Votes),
		Participants:      len(participants),
		WinningTimeSlotID: poll.WinningTimeSlotID,
		LastUpdate:        time.Now(),
	}, nil
}

// Attendees returns the de-duplicated voter emails for a poll, in first-vote
// order, for use as the attendee list of the scheduled event.
func (s *Store) Attendees(ctx context.Context, pollID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, err := s.pollLocked(pollID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(poll.Votes))
	var emails []string
	for _, v := range poll.Votes {
		if _, ok := seen[v.VoterEmail]; ok {
			continue
		}
		seen[v.VoterEmail] = struct{}{}
		emails = append(emails, v.VoterEmail)
	}
	return emails, nil
}

// pollLocked returns the live poll or a not-found error. Callers must hold
// s.mu.
func (s *Store) pollLocked(pollID string) (*domain.Poll, error) {
	i, ok := s.index[pollID]
	if !ok {
		return nil, apperrors.NewNotFoundError("Poll not found")
	}
	return s.polls[i], nil
}

// tally counts votes per slot with every slot initialized to zero.
func tally(poll *domain.Poll) map[string]int {
	counts := make(map[string]int, len(poll.TimeSlots))
	for _, slot := range poll.TimeSlots {
		counts[slot.ID] = 0
	}
	for _, v := range poll.Votes {
		counts[v.TimeSlotID]++
	}
	return counts
}
