package domain

import "time"

// PollStatus is the lifecycle state of a poll. The state machine is flat:
// active is the initial state, completed and cancelled are terminal.
type PollStatus string

const (
	PollStatusActive    PollStatus = "active"
	PollStatusCompleted PollStatus = "completed"
	PollStatusCancelled PollStatus = "cancelled"
)

// MeetingType tags a poll with the conferencing service the finalized
// meeting should use.
type MeetingType string

const (
	MeetingTypeGoogleMeet MeetingType = "google-meet"
	MeetingTypeZoom       MeetingType = "zoom"
	MeetingTypeOther      MeetingType = "other"
)

// ValidMeetingType reports whether t is one of the known meeting types.
func ValidMeetingType(t MeetingType) bool {
	switch t {
	case MeetingTypeGoogleMeet, MeetingTypeZoom, MeetingTypeOther:
		return true
	}
	return false
}

// TimeSlot is a candidate meeting interval. Immutable after creation.
// Invariant: StartTime < EndTime.
type TimeSlot struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

// Poll is the aggregate root owned by the poll store. TimeSlots keep
// insertion order, Votes are append-only, and WinningTimeSlotID is set if
// and only if Status is completed.
type Poll struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	CreatedBy         User        `json:"created_by"`
	TimeSlots         []TimeSlot  `json:"time_slots"`
	Votes             []Vote      `json:"votes"`
	Created           time.Time   `json:"created"`
	ExpiresAt         time.Time   `json:"expires_at"`
	MeetingType       MeetingType `json:"meeting_type"`
	Status            PollStatus  `json:"status"`
	WinningTimeSlotID string      `json:"winning_time_slot_id,omitempty"`
}

// Slot returns the poll's time slot with the given id, or nil.
func (p *Poll) Slot(id string) *TimeSlot {
	for i := range p.TimeSlots {
		if p.TimeSlots[i].ID == id {
			return &p.TimeSlots[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the poll so callers cannot mutate the
// store's state through a returned pointer.
func (p *Poll) Clone() *Poll {
	c := *p
	c.TimeSlots = make([]TimeSlot, len(p.TimeSlots))
	copy(c.TimeSlots, p.TimeSlots)
	c.Votes = make([]Vote, len(p.Votes))
	copy(c.Votes, p.Votes)
	return &c
}

// CreatePollRequest is the payload for creating a poll.
type CreatePollRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	TimeSlots   []TimeSlot  `json:"time_slots"`
	MeetingType MeetingType `json:"meeting_type"`
}

// SlotTally is the vote count for a single slot in a results projection.
type SlotTally struct {
	TimeSlot  TimeSlot `json:"time_slot"`
	VoteCount int      `json:"vote_count"`
}

// PollResults is a derived projection of a poll's votes. Participants
// de-duplicates voters by email; TotalVotes counts every vote record.
type PollResults struct {
	PollID            string      `json:"poll_id"`
	Status            PollStatus  `json:"status"`
	Slots             []SlotTally `json:"slots"`
	TotalVotes        int         `json:"total_votes"`
	Participants      int         `json:"participants"`
	WinningTimeSlotID string      `json:"winning_time_slot_id,omitempty"`
	LastUpdate        time.Time   `json:"last_update"`
}

// SharePollResponse carries a public voting link token for a poll.
type SharePollResponse struct {
	PollID    string    `json:"poll_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SchedulePollResponse is returned after a poll has been finalized and the
// winning slot scheduled on the creator's calendar.
type SchedulePollResponse struct {
	Poll    *Poll  `json:"poll"`
	EventID string `json:"event_id"`
}
