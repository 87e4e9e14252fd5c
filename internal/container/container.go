package container

import (
	"context"

	"meetpoll/internal/config"
	"meetpoll/internal/service"
	"meetpoll/internal/service/auth"
	"meetpoll/internal/service/calendar"
	"meetpoll/internal/store"
	"meetpoll/pkg/database"
	"meetpoll/pkg/logger"
	"meetpoll/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.SnapshotDB
	RedisClient *redis.Client
	Store       *store.Store
	Services    *service.Services
	Cache       *service.CacheService
}

// New creates a new dependency injection container. Redis is optional; the
// snapshot database is not.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewSnapshotDB(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	pollStore, err := store.New(ctx, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	services := &service.Services{
		Auth:     auth.NewService(cfg.ShareTokenSecret, log),
		Calendar: calendar.NewService(db, log),
	}

	return &Container{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		RedisClient: redisClient,
		Store:       pollStore,
		Services:    services,
		Cache:       service.NewCacheService(redisClient, pollStore, log),
	}, nil
}

// Close releases the container's resources.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.WithError(err).Warn("Failed to close snapshot database")
	}
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetCalendarService returns the calendar service
func (c *Container) GetCalendarService() service.CalendarService {
	return c.Services.Calendar
}

// GetStore returns the poll store
func (c *Container) GetStore() *store.Store {
	return c.Store
}

// GetCacheService returns the results cache layer. It is always non-nil;
// without Redis it reads straight through to the store.
func (c *Container) GetCacheService() *service.CacheService {
	return c.Cache
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
