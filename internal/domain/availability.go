package domain

import "time"

// BusyInterval is an externally reported calendar-occupied time range.
// Parsed from the calendar provider's payload at the adapter boundary.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the half-open interval [start, end) conflicts
// with the busy interval: slotStart < busyEnd && slotEnd > busyStart.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// CalendarAvailability is the free-slot projection for one calendar day.
// Slots that conflict with a busy interval are dropped. Derived data:
// recomputed on every availability request, never persisted.
type CalendarAvailability struct {
	Date           time.Time  `json:"date"`
	AvailableSlots []TimeSlot `json:"available_slots"`
}

// CreateEventRequest is the payload for creating a calendar event from a
// finalized poll (or directly).
type CreateEventRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Attendees   []string    `json:"attendees,omitempty"`
	MeetingType MeetingType `json:"meeting_type,omitempty"`
}

// CreateEventResponse carries the provider-assigned event id.
type CreateEventResponse struct {
	EventID string `json:"event_id"`
}

// CalendarStatusResponse reports the per-user calendar connection flag.
type CalendarStatusResponse struct {
	Connected bool `json:"connected"`
}
