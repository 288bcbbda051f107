package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents the lifecycle state of an ingested event.
type Status string

const (
	StatusReceived   Status = "received"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

var ErrNotFound = errors.New("event not found")

// Event is the durable record of one externally-delivered notification.
// The ID is assigned by the payments provider and is the dedup key.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"-"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// validTransitions encodes the forward-only lifecycle. The only backward
// edges are retry and operator redrive, both of which land on queued.
var validTransitions = map[Status][]Status{
	StatusReceived:   {StatusQueued},
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed, StatusQueued},
	StatusFailed:     {StatusQueued},
}

// CanTransition reports whether moving from one status to another is legal.
// Terminal state processed has no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further automatic transition.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}
