package event

import (
	"context"
	"time"
)

// Repository defines the durable event log. All mutation goes through
// atomic operations: insert-if-absent on creation and conditional status
// updates everywhere else. Implementations must never read-modify-write
// without a guard.
type Repository interface {
	// InsertReceived atomically creates the row if no event with the same
	// ID exists. Returns created=false on duplicate delivery, with no
	// mutation of the existing row.
	InsertReceived(ctx context.Context, ev *Event) (created bool, err error)

	// MarkQueued transitions received -> queued after admission.
	MarkQueued(ctx context.Context, id string) error

	// ClaimBatch atomically claims up to limit due queued events,
	// transitioning them to processing and incrementing attempts.
	// Claims are exclusive across concurrent callers.
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]Event, error)

	// MarkProcessed transitions processing -> processed.
	MarkProcessed(ctx context.Context, id string) error

	// MarkRetry transitions processing -> queued with a failure reason and
	// the earliest time the event may be claimed again.
	MarkRetry(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) error

	// MarkFailed transitions processing -> failed (terminal).
	MarkFailed(ctx context.Context, id string, lastErr string) error

	// Requeue redrives a terminal failed event back to queued, resetting
	// its attempt budget. Returns false when the event is not in failed.
	Requeue(ctx context.Context, id string) (bool, error)

	// ReclaimStranded returns events stuck in processing past the lease
	// cutoff (worker crashed mid-flight) and events stranded in received
	// (gateway crashed before enqueue) to queued. Returns the number of
	// rows reclaimed.
	ReclaimStranded(ctx context.Context, cutoff time.Time) (int64, error)

	// GetByID fetches one event, ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Event, error)

	// ListByStatus lists events in a given state, oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
}
