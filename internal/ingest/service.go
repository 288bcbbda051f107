package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/metrics"
)

var (
	ErrBadPayload = errors.New("invalid event payload")
	ErrStorage    = errors.New("event store unavailable")
)

// Outcome is the gateway's admission result for a verified delivery.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result describes a successful admission.
type Result struct {
	Outcome Outcome
	EventID string
	Type    string
}

// envelope is the minimum structure every provider notification carries.
type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
}

// Service is the event ingestion gateway: authenticate, dedup, record,
// acknowledge. It never runs fulfillment inline; admitted events are
// handed to the worker pool through the durable log plus a wake signal.
type Service struct {
	events event.Repository
	secret string
	window time.Duration
	wake   chan<- struct{}
	now    func() time.Time
	logger *zap.Logger
}

// NewService refuses a blank webhook secret: serving without one would
// accept forged deliveries, so the process must not come up.
func NewService(cfg *config.Config, events event.Repository, wake chan<- struct{}, logger *zap.Logger) (*Service, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("PAYMENTS_WEBHOOK_SECRET is required")
	}
	return &Service{
		events: events,
		secret: cfg.WebhookSecret,
		window: cfg.WebhookReplayWindow,
		wake:   wake,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("ingest"),
	}, nil
}

// Ingest admits one raw delivery. Redelivery of an already-recorded event
// ID is a no-op success: no row mutation, no second enqueue. Signature and
// format failures never create a row; storage failures surface as ErrStorage
// so the provider's retry machinery redrives the delivery later.
func (s *Service) Ingest(ctx context.Context, rawBody []byte, sigHeader string) (Result, error) {
	if err := VerifySignature(s.secret, sigHeader, rawBody, s.now(), s.window); err != nil {
		switch {
		case errors.Is(err, ErrBadTimestamp):
			metrics.EventsRejectedTotal.WithLabelValues(metrics.ReasonTimestamp).Inc()
		default:
			metrics.EventsRejectedTotal.WithLabelValues(metrics.ReasonSignature).Inc()
		}
		s.logger.Warn("webhook_rejected", zap.Error(err))
		return Result{}, err
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		metrics.EventsRejectedTotal.WithLabelValues(metrics.ReasonPayload).Inc()
		return Result{}, ErrBadPayload
	}
	env.ID = strings.TrimSpace(env.ID)
	env.Type = strings.TrimSpace(env.Type)
	if env.ID == "" || env.Type == "" {
		metrics.EventsRejectedTotal.WithLabelValues(metrics.ReasonPayload).Inc()
		return Result{}, ErrBadPayload
	}

	ev := &event.Event{
		ID:         env.ID,
		Type:       env.Type,
		Payload:    rawBody,
		Status:     event.StatusReceived,
		ReceivedAt: s.now(),
		UpdatedAt:  s.now(),
	}

	created, err := s.events.InsertReceived(ctx, ev)
	if err != nil {
		metrics.EventsRejectedTotal.WithLabelValues(metrics.ReasonStorage).Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if !created {
		metrics.EventsDuplicateTotal.Inc()
		s.logger.Info("webhook_duplicate",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
		)
		return Result{Outcome: OutcomeDuplicate, EventID: env.ID, Type: env.Type}, nil
	}

	// The row is durable; a crash past this point leaves it in received,
	// where the reclaimer moves it on. MarkQueued failing is therefore
	// not an admission failure.
	if err := s.events.MarkQueued(ctx, env.ID); err != nil {
		s.logger.Warn("webhook_enqueue_failed",
			zap.Error(err),
			zap.String("event_id", env.ID),
		)
	}
	s.signalWorkers()

	metrics.EventsAcceptedTotal.Inc()
	s.logger.Info("webhook_accepted",
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type),
	)
	return Result{Outcome: OutcomeAccepted, EventID: env.ID, Type: env.Type}, nil
}

// GetEvent exposes the read path for one event.
func (s *Service) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) signalWorkers() {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
