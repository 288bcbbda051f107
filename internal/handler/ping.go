package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/event"
)

const TypePing = "ping"

// Ping acknowledges the provider's connectivity check. No domain state.
type Ping struct {
	logger *zap.Logger
}

func NewPing(logger *zap.Logger) *Ping {
	return &Ping{logger: logger.Named("ping")}
}

func (h *Ping) EventType() string {
	return TypePing
}

func (h *Ping) Handle(_ context.Context, ev event.Event) error {
	h.logger.Info("ping_received", zap.String("event_id", ev.ID))
	return nil
}
