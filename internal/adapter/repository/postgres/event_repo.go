package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iamez/ez-solutions/internal/domain/event"
)

// EventModel is the database DTO with Gorm tags.
type EventModel struct {
	ID            string `gorm:"primaryKey;type:varchar(255)"`
	Type          string `gorm:"type:varchar(100);not null"`
	Payload       []byte `gorm:"type:jsonb;not null"`
	Status        string `gorm:"type:varchar(50);not null;index"`
	Attempts      int    `gorm:"not null;default:0"`
	LastError     string `gorm:"type:text"`
	ReceivedAt    time.Time
	LockedAt      *time.Time
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
	UpdatedAt     time.Time
}

func (EventModel) TableName() string {
	return "payment_events"
}

// EventRepository is the Postgres-backed durable event log. Every mutation
// is either an insert-if-absent or a conditional update guarded by the
// current status, so concurrent gateways and workers cannot race each
// other into inconsistent states.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) InsertReceived(ctx context.Context, ev *event.Event) (bool, error) {
	model := toEventModel(ev)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *EventRepository) MarkQueued(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ?", id, event.StatusReceived).
		Updates(map[string]any{
			"status":     event.StatusQueued,
			"updated_at": now,
		}).Error
}

func (r *EventRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]event.Event, error) {
	var models []EventModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM payment_events
			 WHERE status = ?
			   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			 ORDER BY received_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			event.StatusQueued,
			now,
			limit,
		).Scan(&models).Error; err != nil {
			return err
		}

		if len(models) == 0 {
			return nil
		}

		ids := make([]string, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
			models[i].Attempts++
			models[i].Status = string(event.StatusProcessing)
		}

		return tx.Model(&EventModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     event.StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(models))
	for i := range models {
		events = append(events, *toEventDomain(models[i]))
	}
	return events, nil
}

func (r *EventRepository) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ?", id, event.StatusProcessing).
		Updates(map[string]any{
			"status":       event.StatusProcessed,
			"processed_at": now,
			"updated_at":   now,
			"last_error":   nil,
			"locked_at":    nil,
		}).Error
}

func (r *EventRepository) MarkRetry(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ?", id, event.StatusProcessing).
		Updates(map[string]any{
			"status":          event.StatusQueued,
			"last_error":      lastErr,
			"next_attempt_at": nextAttemptAt.UTC(),
			"updated_at":      now,
			"locked_at":       nil,
		}).Error
}

func (r *EventRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ?", id, event.StatusProcessing).
		Updates(map[string]any{
			"status":     event.StatusFailed,
			"last_error": lastErr,
			"updated_at": now,
			"locked_at":  nil,
		}).Error
}

func (r *EventRepository) Requeue(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ? AND status = ?", id, event.StatusFailed).
		Updates(map[string]any{
			"status":          event.StatusQueued,
			"attempts":        0,
			"next_attempt_at": nil,
			"updated_at":      now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *EventRepository) ReclaimStranded(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("(status = ? AND locked_at < ?) OR (status = ? AND received_at < ?)",
			event.StatusProcessing, cutoff,
			event.StatusReceived, cutoff,
		).
		Updates(map[string]any{
			"status":     event.StatusQueued,
			"locked_at":  nil,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	var model EventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return toEventDomain(model), nil
}

func (r *EventRepository) ListByStatus(ctx context.Context, status event.Status, limit int) ([]event.Event, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("received_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(models))
	for _, model := range models {
		events = append(events, *toEventDomain(model))
	}
	return events, nil
}

// Mappers

func toEventDomain(m EventModel) *event.Event {
	return &event.Event{
		ID:            m.ID,
		Type:          m.Type,
		Payload:       m.Payload,
		Status:        event.Status(m.Status),
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		ReceivedAt:    m.ReceivedAt,
		LockedAt:      m.LockedAt,
		NextAttemptAt: m.NextAttemptAt,
		ProcessedAt:   m.ProcessedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toEventModel(e *event.Event) EventModel {
	return EventModel{
		ID:            e.ID,
		Type:          e.Type,
		Payload:       e.Payload,
		Status:        string(e.Status),
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		ReceivedAt:    e.ReceivedAt,
		LockedAt:      e.LockedAt,
		NextAttemptAt: e.NextAttemptAt,
		ProcessedAt:   e.ProcessedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
