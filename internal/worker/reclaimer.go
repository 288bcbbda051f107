package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/metrics"
)

// Reclaimer returns leaked events to the queue: claims whose worker died
// mid-flight, and admissions whose gateway died between the durable write
// and the enqueue. Both look the same from outside — a row that stopped
// moving — and both become claimable again once the lease expires.
type Reclaimer struct {
	events   event.Repository
	logger   *zap.Logger
	lease    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewReclaimer(cfg *config.Config, events event.Repository, logger *zap.Logger) *Reclaimer {
	return &Reclaimer{
		events:   events,
		logger:   logger.Named("reclaimer"),
		lease:    cfg.WorkerLease,
		interval: cfg.ReclaimInterval,
		now:      time.Now,
	}
}

// Run blocks until ctx is canceled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context) {
	cutoff := r.now().UTC().Add(-r.lease)

	reclaimed, err := r.events.ReclaimStranded(ctx, cutoff)
	if err != nil {
		r.logger.Error("reclaim_sweep_failed", zap.Error(err))
		return
	}
	if reclaimed == 0 {
		return
	}

	metrics.EventsReclaimedTotal.Add(float64(reclaimed))
	r.logger.Warn("events_reclaimed",
		zap.Int64("count", reclaimed),
		zap.Time("cutoff", cutoff),
	)
}
