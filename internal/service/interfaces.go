package service

import (
	"context"
	"time"

	"meetpoll/internal/domain"
)

// AuthService defines the interface for identity operations
type AuthService interface {
	// ValidateAccessToken resolves a Google OAuth access token to the user
	// it belongs to.
	ValidateAccessToken(ctx context.Context, token string) (*domain.User, error)

	// IssueShareToken mints a signed public-voting token bound to the poll.
	// The token expires when the poll does.
	IssueShareToken(pollID string, expiresAt time.Time) (string, error)

	// ValidateShareToken verifies a share token and returns the poll id it
	// is bound to.
	ValidateShareToken(token string) (string, error)
}

// CalendarService defines the interface for calendar operations
type CalendarService interface {
	// FetchAvailability computes free half-hour slots per day in [start, end)
	// against the user's primary calendar.
	FetchAvailability(ctx context.Context, accessToken string, start, end time.Time) ([]domain.CalendarAvailability, error)

	// Connect probes calendar access with the given token and records the
	// user as connected.
	Connect(ctx context.Context, accessToken string, userID string) error

	// Disconnect clears the user's connected marker.
	Disconnect(ctx context.Context, userID string) error

	// Connected reports whether the user has connected their calendar.
	Connected(ctx context.Context, userID string) (bool, error)

	// CreateEvent inserts an event on the user's primary calendar.
	CreateEvent(ctx context.Context, accessToken string, req *domain.CreateEventRequest) (*domain.CreateEventResponse, error)
}

// Services aggregates all service interfaces
type Services struct {
	Auth     AuthService
	Calendar CalendarService
}
