package calendar

import (
	"context"
	"strings"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/internal/service"
	"meetpoll/pkg/database"
	"meetpoll/pkg/errors"
	"meetpoll/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	primaryCalendarID = "primary"

	// Candidate meeting slots start at 09:00 local and run back to back.
	workdayStartHour = 9
	slotLength       = 30 * time.Minute
	slotsPerDay      = 16
)

// Service implements the CalendarService interface against the Google
// Calendar API. Connected markers live in the snapshot database so they
// survive restarts.
type Service struct {
	db     *database.SnapshotDB
	logger *logger.Logger

	// extraOpts lets tests point the client at a local server.
	extraOpts []option.ClientOption
}

// NewService creates a new calendar service
func NewService(db *database.SnapshotDB, logger *logger.Logger) service.CalendarService {
	return &Service{db: db, logger: logger}
}

// NewServiceWithOptions creates a calendar service with additional client
// options. Used in tests with option.WithEndpoint.
func NewServiceWithOptions(db *database.SnapshotDB, logger *logger.Logger, opts ...option.ClientOption) service.CalendarService {
	return &Service{db: db, logger: logger, extraOpts: opts}
}

func connectedKey(userID string) string {
	return "calendar_connected:" + userID
}

// client builds a per-request API client authenticated with the caller's
// access token. The token is never stored.
func (s *Service) client(ctx context.Context, accessToken string) (*gcal.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, s.extraOpts...)

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.NewInternalError("Failed to create calendar client", err)
	}
	return svc, nil
}

// FetchAvailability computes the slot grid for every day in [start, end)
// against the user's primary calendar. Each day gets the same fixed grid;
// a slot is available when it overlaps no busy interval.
func (s *Service) FetchAvailability(ctx context.Context, accessToken string, start, end time.Time) ([]domain.CalendarAvailability, error) {
	if !start.Before(end) {
		return nil, errors.NewValidationError("Availability start must be before end", nil)
	}

	svc, err := s.client(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	busy, err := s.fetchBusyIntervals(ctx, svc, start, end)
	if err != nil {
		return nil, err
	}

	var days []domain.CalendarAvailability
	loc := start.Location()
	for day := truncateToDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, domain.CalendarAvailability{
			Date:           day,
			AvailableSlots: availableSlots(daySlots(day, loc), busy),
		})
	}

	s.logger.WithFields(map[string]interface{}{
		"days":           len(days),
		"busy_intervals": len(busy),
	}).Debug("Availability computed")

	return days, nil
}

// fetchBusyIntervals pulls the user's events in [start, end) and converts
// them to busy intervals, following pagination.
func (s *Service) fetchBusyIntervals(ctx context.Context, svc *gcal.Service, start, end time.Time) ([]domain.BusyInterval, error) {
	var busy []domain.BusyInterval

	call := svc.Events.List(primaryCalendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx)

	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, mapGoogleError("Failed to list calendar events", err)
		}

		for _, item := range events.Items {
			interval, ok, err := busyInterval(item, start.Location())
			if err != nil {
				return nil, err
			}
			if ok {
				busy = append(busy, interval)
			}
		}

		if events.NextPageToken == "" {
			return busy, nil
		}
		pageToken = events.NextPageToken
	}
}

// busyInterval converts one event to a busy interval. Cancelled and
// transparent (marked free) events do not block slots; all-day events block
// the whole day. A malformed timestamp aborts the request rather than
// silently treating the time as free.
func busyInterval(item *gcal.Event, loc *time.Location) (domain.BusyInterval, bool, error) {
	if item.Status == "cancelled" || item.Transparency == "transparent" {
		return domain.BusyInterval{}, false, nil
	}
	if item.Start == nil || item.End == nil {
		return domain.BusyInterval{}, false, nil
	}

	if item.Start.DateTime != "" {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return domain.BusyInterval{}, false, errors.NewExternalError("Calendar returned an unparseable event start", err)
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return domain.BusyInterval{}, false, errors.NewExternalError("Calendar returned an unparseable event end", err)
		}
		return domain.BusyInterval{Start: start, End: end}, true, nil
	}

	if item.Start.Date != "" {
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		if err != nil {
			return domain.BusyInterval{}, false, errors.NewExternalError("Calendar returned an unparseable all-day start", err)
		}
		end, err := time.ParseInLocation("2006-01-02", item.End.Date, loc)
		if err != nil {
			return domain.BusyInterval{}, false, errors.NewExternalError("Calendar returned an unparseable all-day end", err)
		}
		return domain.BusyInterval{Start: start, End: end}, true, nil
	}

	return domain.BusyInterval{}, false, nil
}

// daySlots builds the fixed grid for one day: consecutive half-hour slots
// starting at 09:00 local, all initially available.
func daySlots(day time.Time, loc *time.Location) []domain.TimeSlot {
	first := time.Date(day.Year(), day.Month(), day.Day(), workdayStartHour, 0, 0, 0, loc)

	slots := make([]domain.TimeSlot, 0, slotsPerDay)
	for i := 0; i < slotsPerDay; i++ {
		start := first.Add(time.Duration(i) * slotLength)
		slots = append(slots, domain.TimeSlot{
			ID:        "slot-" + start.Format(time.RFC3339),
			StartTime: start,
			EndTime:   start.Add(slotLength),
			Available: true,
		})
	}
	return slots
}

// availableSlots drops every slot that overlaps a busy interval.
func availableSlots(slots []domain.TimeSlot, busy []domain.BusyInterval) []domain.TimeSlot {
	free := make([]domain.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		blocked := false
		for _, b := range busy {
			if b.Overlaps(slot.StartTime, slot.EndTime) {
				blocked = true
				break
			}
		}
		if !blocked {
			free = append(free, slot)
		}
	}
	return free
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Connect probes calendar access with the caller's token and records the
// user as connected. The probe keeps a bad token from being marked usable.
func (s *Service) Connect(ctx context.Context, accessToken string, userID string) error {
	svc, err := s.client(ctx, accessToken)
	if err != nil {
		return err
	}

	if _, err := svc.CalendarList.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return mapGoogleError("Calendar access probe failed", err)
	}

	if err := s.db.Put(ctx, connectedKey(userID), []byte("1")); err != nil {
		return errors.NewInternalError("Failed to record calendar connection", err)
	}

	s.logger.WithField("user_id", userID).Info("Calendar connected")
	return nil
}

// Disconnect clears the user's connected marker. Disconnecting a user who
// never connected is not an error.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.db.Delete(ctx, connectedKey(userID)); err != nil {
		return errors.NewInternalError("Failed to clear calendar connection", err)
	}

	s.logger.WithField("user_id", userID).Info("Calendar disconnected")
	return nil
}

// Connected reports whether the user has connected their calendar.
func (s *Service) Connected(ctx context.Context, userID string) (bool, error) {
	val, err := s.db.Get(ctx, connectedKey(userID))
	if err != nil {
		return false, errors.NewInternalError("Failed to read calendar connection", err)
	}
	return val != nil, nil
}

// CreateEvent inserts an event on the user's primary calendar. Attendee
// emails are de-duplicated case-insensitively. Google Meet polls get a
// conference created alongside the event.
func (s *Service) CreateEvent(ctx context.Context, accessToken string, req *domain.CreateEventRequest) (*domain.CreateEventResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.NewValidationError("Event title is required", nil)
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, errors.NewValidationError("Event start must be before its end", nil)
	}

	svc, err := s.client(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Summary:     req.Title,
		Description: req.Description,
		Start: &gcal.EventDateTime{
			DateTime: req.StartTime.Format(time.RFC3339),
			TimeZone: req.StartTime.Location().String(),
		},
		End: &gcal.EventDateTime{
			DateTime: req.EndTime.Format(time.RFC3339),
			TimeZone: req.EndTime.Location().String(),
		},
		Attendees: eventAttendees(req.Attendees),
	}

	if req.MeetingType == domain.MeetingTypeGoogleMeet {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		}
	}

	created, err := svc.Events.Insert(primaryCalendarID, event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapGoogleError("Failed to create calendar event", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"event_id":  created.Id,
		"attendees": len(event.Attendees),
	}).Info("Calendar event created")

	return &domain.CreateEventResponse{EventID: created.Id}, nil
}

func eventAttendees(emails []string) []*gcal.EventAttendee {
	seen := make(map[string]struct{}, len(emails))
	var attendees []*gcal.EventAttendee
	for _, email := range emails {
		e := strings.ToLower(strings.TrimSpace(email))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		attendees = append(attendees, &gcal.EventAttendee{Email: e})
	}
	return attendees
}

// mapGoogleError translates API failures: auth problems surface as
// authentication errors so the client can re-consent, everything else is an
// upstream failure.
func mapGoogleError(message string, err error) error {
	if ge, ok := err.(*googleapi.Error); ok {
		if ge.Code == 401 || ge.Code == 403 {
			return errors.NewAuthenticationError("Calendar access was denied")
		}
	}
	return errors.NewExternalError(message, err)
}
