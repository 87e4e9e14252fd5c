package domain

import "time"

// Vote is one participant's recorded preference for a single time slot.
// Votes are created on submission and never mutated or deleted. VoterID is
// generated by the store; votes are not de-duplicated by identity.
type Vote struct {
	VoterID    string    `json:"voter_id"`
	VoterName  string    `json:"voter_name"`
	VoterEmail string    `json:"voter_email"`
	TimeSlotID string    `json:"time_slot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// VoteRequest is the payload for submitting a vote against a poll.
type VoteRequest struct {
	TimeSlotID string `json:"time_slot_id"`
	VoterName  string `json:"voter_name"`
	VoterEmail string `json:"voter_email"`
}
