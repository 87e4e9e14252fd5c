package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/internal/store"
	"meetpoll/pkg/database"
	"meetpoll/pkg/logger"
	"meetpoll/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "test")
	require.NoError(t, err)
	return log
}

func setupCacheTest(t *testing.T) (*miniredis.Miniredis, *store.Store, *CacheService) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)

	db, err := database.NewSnapshotDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pollStore, err := store.New(context.Background(), db, testLogger(t))
	require.NoError(t, err)

	return mr, pollStore, NewCacheService(redisClient, pollStore, testLogger(t))
}

func createPoll(t *testing.T, s *store.Store) *domain.Poll {
	t.Helper()

	start := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	poll, err := s.CreatePoll(context.Background(), &domain.User{ID: "user-1", Name: "Ada", Email: "ada@example.com"}, &domain.CreatePollRequest{
		Title: "Team sync",
		TimeSlots: []domain.TimeSlot{{
			ID:        "slot-" + start.Format(time.RFC3339),
			StartTime: start,
			EndTime:   start.Add(30 * time.Minute),
		}},
		MeetingType: domain.MeetingTypeOther,
	})
	require.NoError(t, err)
	return poll
}

func TestGetResultsWithCache(t *testing.T) {
	mr, pollStore, cache := setupCacheTest(t)
	ctx := context.Background()
	poll := createPoll(t, pollStore)

	results, err := cache.GetResultsWithCache(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, results.TotalVotes)

	// The projection is now cached.
	key := "staging:poll:" + poll.ID + ":results"
	assert.True(t, mr.Exists(key))

	// A vote lands behind the cache's back; the cached copy wins until the
	// entry is invalidated or expires.
	_, err = pollStore.SubmitVote(ctx, poll.ID, &domain.VoteRequest{
		TimeSlotID: poll.TimeSlots[0].ID,
		VoterName:  "Grace",
		VoterEmail: "grace@example.com",
	})
	require.NoError(t, err)

	results, err = cache.GetResultsWithCache(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, results.TotalVotes)

	cache.InvalidateResults(ctx, poll.ID)
	assert.False(t, mr.Exists(key))

	results, err = cache.GetResultsWithCache(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, results.TotalVotes)
}

func TestGetResultsWithCache_CorruptEntryRecomputes(t *testing.T) {
	mr, pollStore, cache := setupCacheTest(t)
	ctx := context.Background()
	poll := createPoll(t, pollStore)

	mr.Set("staging:poll:"+poll.ID+":results", "{not json")

	results, err := cache.GetResultsWithCache(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, results.PollID)
}

func TestGetResultsWithCache_NilRedis(t *testing.T) {
	_, pollStore, _ := setupCacheTest(t)
	ctx := context.Background()
	poll := createPoll(t, pollStore)

	cache := NewCacheService(nil, pollStore, testLogger(t))

	results, err := cache.GetResultsWithCache(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, results.PollID)

	// Invalidation is a no-op without Redis.
	cache.InvalidateResults(ctx, poll.ID)
}
