package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/pkg/database"
	apperrors "meetpoll/pkg/errors"
	"meetpoll/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "test")
	require.NoError(t, err)
	return log
}

func setupStore(t *testing.T) (*Store, *database.SnapshotDB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meetpoll.db")
	db, err := database.NewSnapshotDB(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(context.Background(), db, testLogger(t))
	require.NoError(t, err)
	return s, db
}

func testCreator() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	}
}

func testSlots(n int) []domain.TimeSlot {
	base := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	slots := make([]domain.TimeSlot, 0, n)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * 30 * time.Minute)
		slots = append(slots, domain.TimeSlot{
			ID:        "slot-" + start.Format(time.RFC3339),
			StartTime: start,
			EndTime:   start.Add(30 * time.Minute),
			Available: true,
		})
	}
	return slots
}

func createTestPoll(t *testing.T, s *Store, slots int) *domain.Poll {
	t.Helper()

	poll, err := s.CreatePoll(context.Background(), testCreator(), &domain.CreatePollRequest{
		Title:       "Team sync",
		Description: "Pick a time",
		TimeSlots:   testSlots(slots),
		MeetingType: domain.MeetingTypeGoogleMeet,
	})
	require.NoError(t, err)
	return poll
}

func vote(t *testing.T, s *Store, pollID, slotID, name, email string) {
	t.Helper()

	_, err := s.SubmitVote(context.Background(), pollID, &domain.VoteRequest{
		TimeSlotID: slotID,
		VoterName:  name,
		VoterEmail: email,
	})
	require.NoError(t, err)
}

func TestCreatePoll(t *testing.T) {
	s, _ := setupStore(t)

	poll := createTestPoll(t, s, 3)

	assert.NotEmpty(t, poll.ID)
	assert.Equal(t, domain.PollStatusActive, poll.Status)
	assert.Len(t, poll.TimeSlots, 3)
	assert.Empty(t, poll.Votes)
	assert.Empty(t, poll.WinningTimeSlotID)
	assert.WithinDuration(t, time.Now(), poll.Created, 5*time.Second)
	assert.Equal(t, poll.Created.Add(PollExpiry), poll.ExpiresAt)
}

func TestCreatePoll_RequiresCreator(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.CreatePoll(context.Background(), nil, &domain.CreatePollRequest{
		Title:       "No owner",
		TimeSlots:   testSlots(1),
		MeetingType: domain.MeetingTypeOther,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeAuthorization, apperrors.As(err).Type)
}

func TestCreatePoll_Validation(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.CreatePollRequest
	}{
		{
			name: "missing title",
			req: &domain.CreatePollRequest{
				TimeSlots:   testSlots(1),
				MeetingType: domain.MeetingTypeOther,
			},
		},
		{
			name: "no slots",
			req: &domain.CreatePollRequest{
				Title:       "Empty",
				MeetingType: domain.MeetingTypeOther,
			},
		},
		{
			name: "unknown meeting type",
			req: &domain.CreatePollRequest{
				Title:       "Bad type",
				TimeSlots:   testSlots(1),
				MeetingType: "carrier-pigeon",
			},
		},
		{
			name: "slot start not before end",
			req: &domain.CreatePollRequest{
				Title: "Inverted slot",
				TimeSlots: []domain.TimeSlot{{
					ID:        "slot-x",
					StartTime: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
					EndTime:   time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
				}},
				MeetingType: domain.MeetingTypeOther,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePoll(ctx, testCreator(), tt.req)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.As(err).Type)
		})
	}
}

func TestGetPoll_NotFoundReturnsNil(t *testing.T) {
	s, _ := setupStore(t)
	assert.Nil(t, s.GetPoll(context.Background(), "missing"))
}

func TestSubmitVote(t *testing.T) {
	s, _ := setupStore(t)
	poll := createTestPoll(t, s, 2)

	v, err := s.SubmitVote(context.Background(), poll.ID, &domain.VoteRequest{
		TimeSlotID: poll.TimeSlots[0].ID,
		VoterName:  "Grace",
		VoterEmail: "Grace@Example.com",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, v.VoterID)
	assert.Equal(t, "grace@example.com", v.VoterEmail)

	got := s.GetPoll(context.Background(), poll.ID)
	require.Len(t, got.Votes, 1)
	assert.Equal(t, poll.TimeSlots[0].ID, got.Votes[0].TimeSlotID)
}

func TestSubmitVote_Errors(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	poll := createTestPoll(t, s, 2)

	t.Run("poll not found", func(t *testing.T) {
		_, err := s.SubmitVote(ctx, "missing", &domain.VoteRequest{
			TimeSlotID: poll.TimeSlots[0].ID,
			VoterName:  "Grace",
			VoterEmail: "grace@example.com",
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.As(err).Type)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := s.SubmitVote(ctx, poll.ID, &domain.VoteRequest{
			TimeSlotID: "slot-not-in-poll",
			VoterName:  "Grace",
			VoterEmail: "grace@example.com",
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.As(err).Type)
	})
}

func TestSubmitVote_TerminalPollRejected(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	completed := createTestPoll(t, s, 2)
	_, err := s.FinalizePoll(ctx, completed.ID)
	require.NoError(t, err)

	cancelled := createTestPoll(t, s, 2)
	_, err = s.CancelPoll(ctx, cancelled.ID)
	require.NoError(t, err)

	for _, poll := range []*domain.Poll{completed, cancelled} {
		_, err := s.SubmitVote(ctx, poll.ID, &domain.VoteRequest{
			TimeSlotID: poll.TimeSlots[0].ID,
			VoterName:  "Late Voter",
			VoterEmail: "late@example.com",
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.As(err).Type)

		// No vote was appended.
		got := s.GetPoll(ctx, poll.ID)
		assert.Empty(t, got.Votes)
	}
}

func TestFinalizePoll_MajorityWins(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	poll := createTestPoll(t, s, 3)
	a, b := poll.TimeSlots[0].ID, poll.TimeSlots[1].ID

	// A: 2 votes, B: 3 votes, C: 0 votes.
	vote(t, s, poll.ID, a, "V1", "v1@example.com")
	vote(t, s, poll.ID, a, "V2", "v2@example.com")
	vote(t, s, poll.ID, b, "V3", "v3@example.com")
	vote(t, s, poll.ID, b, "V4", "v4@example.com")
	vote(t, s, poll.ID, b, "V5", "v5@example.com")

	final, err := s.FinalizePoll(ctx, poll.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PollStatusCompleted, final.Status)
	assert.Equal(t, b, final.WinningTimeSlotID)
}

func TestFinalizePoll_TieBreaksByInsertionOrder(t *testing.T) {
	s, _ := setupStore(t)
	poll := createTestPoll(t, s, 2)
	a, b := poll.TimeSlots[0].ID, poll.TimeSlots[1].ID

	vote(t, s, poll.ID, a, "V1", "v1@example.com")
	vote(t, s, poll.ID, b, "V2", "v2@example.com")

	final, err := s.FinalizePoll(context.Background(), poll.ID)
	require.NoError(t, err)

	// First slot to reach the maximum keeps the win.
	assert.Equal(t, a, final.WinningTimeSlotID)
}

func TestFinalizePoll_NoVotesPicksFirstSlot(t *testing.T) {
	s, _ := setupStore(t)
	poll := createTestPoll(t, s, 3)

	final, err := s.FinalizePoll(context.Background(), poll.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PollStatusCompleted, final.Status)
	assert.Equal(t, poll.TimeSlots[0].ID, final.WinningTimeSlotID)
}

func TestFinalizePoll_SecondFinalizeFails(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	poll := createTestPoll(t, s, 2)

	_, err := s.FinalizePoll(ctx, poll.ID)
	require.NoError(t, err)

	_, err = s.FinalizePoll(ctx, poll.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.As(err).Type)
}

func TestFinalizePoll_NotFound(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.FinalizePoll(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.As(err).Type)
}

func TestCancelPoll_OverwritesCompletedStatus(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	poll := createTestPoll(t, s, 2)

	_, err := s.FinalizePoll(ctx, poll.ID)
	require.NoError(t, err)

	// Cancel does not check the current status, so cancelling a completed
	// poll succeeds and overwrites it.
	cancelled, err := s.CancelPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusCancelled, cancelled.Status)
}

func TestCancelPoll_NotFound(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.CancelPoll(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.As(err).Type)
}

func TestResults(t *testing.T) {
	s, _ := setupStore(t)
	poll := createTestPoll(t, s, 3)
	a, b := poll.TimeSlots[0].ID, poll.TimeSlots[1].ID

	vote(t, s, poll.ID, a, "V1", "v1@example.com")
	vote(t, s, poll.ID, b, "V2", "v2@example.com")
	// Same participant voting twice: counts as two votes, one participant.
	vote(t, s, poll.ID, b, "V2", "v2@example.com")

	results, err := s.Results(context.Background(), poll.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, results.TotalVotes)
	assert.Equal(t, 2, results.Participants)
	require.Len(t, results.Slots, 3)
	assert.Equal(t, 1, results.Slots[0].VoteCount)
	assert.Equal(t, 2, results.Slots[1].VoteCount)
	assert.Equal(t, 0, results.Slots[2].VoteCount)
}

func TestAttendees_DeduplicatedByEmail(t *testing.T) {
	s, _ := setupStore(t)
	poll := createTestPoll(t, s, 2)
	a := poll.TimeSlots[0].ID

	vote(t, s, poll.ID, a, "V1", "v1@example.com")
	vote(t, s, poll.ID, a, "V2", "v2@example.com")
	vote(t, s, poll.ID, a, "V1 again", "v1@example.com")

	attendees, err := s.Attendees(context.Background(), poll.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1@example.com", "v2@example.com"}, attendees)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meetpoll.db")

	db, err := database.NewSnapshotDB(ctx, path)
	require.NoError(t, err)

	s, err := New(ctx, db, testLogger(t))
	require.NoError(t, err)

	poll, err := s.CreatePoll(ctx, testCreator(), &domain.CreatePollRequest{
		Title:       "Persisted",
		Description: "Survives restarts",
		TimeSlots:   testSlots(2),
		MeetingType: domain.MeetingTypeZoom,
	})
	require.NoError(t, err)
	vote(t, s, poll.ID, poll.TimeSlots[1].ID, "Grace", "grace@example.com")
	require.NoError(t, db.Close())

	// Reopen from the same file and compare.
	db2, err := database.NewSnapshotDB(ctx, path)
	require.NoError(t, err)
	defer db2.Close()

	s2, err := New(ctx, db2, testLogger(t))
	require.NoError(t, err)

	reloaded := s2.GetPoll(ctx, poll.ID)
	require.NotNil(t, reloaded)

	original := s.GetPoll(ctx, poll.ID)
	assert.Equal(t, original.Title, reloaded.Title)
	assert.Equal(t, original.MeetingType, reloaded.MeetingType)
	assert.Equal(t, original.Status, reloaded.Status)
	require.Len(t, reloaded.TimeSlots, 2)
	require.Len(t, reloaded.Votes, 1)

	// Date-typed fields survive the round trip.
	assert.True(t, original.Created.Equal(reloaded.Created))
	assert.True(t, original.ExpiresAt.Equal(reloaded.ExpiresAt))
	assert.True(t, original.TimeSlots[0].StartTime.Equal(reloaded.TimeSlots[0].StartTime))
	assert.True(t, original.TimeSlots[0].EndTime.Equal(reloaded.TimeSlots[0].EndTime))
	assert.True(t, original.Votes[0].CreatedAt.Equal(reloaded.Votes[0].CreatedAt))
}

func TestListPollsByCreator(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	createTestPoll(t, s, 1)
	createTestPoll(t, s, 1)

	other := &domain.User{ID: "user-2", Name: "Other", Email: "other@example.com"}
	_, err := s.CreatePoll(ctx, other, &domain.CreatePollRequest{
		Title:       "Someone else's",
		TimeSlots:   testSlots(1),
		MeetingType: domain.MeetingTypeOther,
	})
	require.NoError(t, err)

	assert.Len(t, s.ListPollsByCreator(ctx, "user-1"), 2)
	assert.Len(t, s.ListPollsByCreator(ctx, "user-2"), 1)
	assert.Len(t, s.ListPolls(ctx), 3)
}

func TestGetPoll_ReturnsCopy(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	poll := createTestPoll(t, s, 2)

	got := s.GetPoll(ctx, poll.ID)
	got.Title = "mutated"
	got.TimeSlots[0].ID = "mutated"

	again := s.GetPoll(ctx, poll.ID)
	assert.Equal(t, "Team sync", again.Title)
	assert.NotEqual(t, "mutated", again.TimeSlots[0].ID)
}
