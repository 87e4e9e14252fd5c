package service

import (
	"context"
	"encoding/json"

	"meetpoll/internal/domain"
	"meetpoll/internal/store"
	"meetpoll/pkg/logger"
	"meetpoll/pkg/redis"
)

// CacheService is a cache-aside layer over the poll store's results
// projection. Redis is optional: with a nil client every call falls through
// to the store, and cache failures are logged but never surfaced.
type CacheService struct {
	redis  *redis.Client
	store  *store.Store
	logger *logger.Logger
}

// NewCacheService creates a new cache service. redisClient may be nil.
func NewCacheService(redisClient *redis.Client, pollStore *store.Store, log *logger.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		store:  pollStore,
		logger: log,
	}
}

// GetResultsWithCache returns the results projection for a poll, serving
// from Redis when a fresh copy exists.
func (s *CacheService) GetResultsWithCache(ctx context.Context, pollID string) (*domain.PollResults, error) {
	if s.redis == nil {
		return s.store.Results(ctx, pollID)
	}

	key := s.redis.KeyBuilder.KeyPollResults(pollID)
	if cached, err := s.redis.Get(ctx, key); err == nil {
		var results domain.PollResults
		if err := json.Unmarshal([]byte(cached), &results); err == nil {
			return &results, nil
		}
		s.logger.WithField("poll_id", pollID).Warn("Dropping undecodable cached results")
	}

	results, err := s.store.Results(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		if err := s.redis.Set(ctx, key, data, redis.TTLResults); err != nil {
			s.logger.WithError(err).WithField("poll_id", pollID).Warn("Failed to cache poll results")
		}
	}

	return results, nil
}

// InvalidateResults drops the cached results for a poll. Called after every
// mutation so readers never see a stale terminal status for longer than one
// round trip.
func (s *CacheService) InvalidateResults(ctx context.Context, pollID string) {
	if s.redis == nil {
		return
	}

	key := s.redis.KeyBuilder.KeyPollResults(pollID)
	if err := s.redis.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("poll_id", pollID).Warn("Failed to invalidate poll results cache")
	}
}
