package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/event"
)

// Handler applies one event's effect to domain state. Implementations must
// be idempotent: applying the same event twice leaves the same end state,
// because attempt retries and crash recovery redeliver events.
type Handler interface {
	EventType() string
	Handle(ctx context.Context, ev event.Event) error
}

// Registry dispatches events to handlers by event type. Types nobody
// handles are a distinct outcome, not an error: the event is recorded
// and completed without side effects.
type Registry struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger, handlers ...Handler) *Registry {
	byType := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byType[h.EventType()] = h
	}
	return &Registry{
		handlers: byType,
		logger:   logger.Named("handler"),
	}
}

// Dispatch routes one event. handled=false means no handler claims the
// type; err is non-nil only when a handler ran and failed.
func (r *Registry) Dispatch(ctx context.Context, ev event.Event) (handled bool, err error) {
	h, ok := r.handlers[ev.Type]
	if !ok {
		r.logger.Info("event_type_unhandled",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
		)
		return false, nil
	}
	return true, h.Handle(ctx, ev)
}
