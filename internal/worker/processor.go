package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/handler"
	"github.com/iamez/ez-solutions/internal/metrics"
)

// Processor pulls claimed events off the log and runs them through the
// handler registry. Each worker claims its own batches; claims are
// exclusive at the store level, so workers never share an event.
type Processor struct {
	events   event.Repository
	registry *handler.Registry
	logger   *zap.Logger
	wake     <-chan struct{}

	workerCount    int
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	handlerTimeout time.Duration

	now func() time.Time
}

func NewProcessor(cfg *config.Config, events event.Repository, registry *handler.Registry, wake <-chan struct{}, logger *zap.Logger) *Processor {
	return &Processor{
		events:         events,
		registry:       registry,
		logger:         logger.Named("worker"),
		wake:           wake,
		workerCount:    cfg.WorkerCount,
		pollInterval:   cfg.WorkerPollInterval,
		batchSize:      cfg.WorkerBatchSize,
		maxAttempts:    cfg.WorkerMaxAttempts,
		handlerTimeout: cfg.HandlerTimeout,
		now:            time.Now,
	}
}

// Run blocks until ctx is canceled. Workers poll on a ticker and also
// wake immediately when the gateway signals a fresh admission.
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) runWorker(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))

	p.drain(ctx, logger)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.drain(ctx, logger)
	}
}

// drain claims and processes batches until the queue has nothing due.
func (p *Processor) drain(ctx context.Context, logger *zap.Logger) {
	for ctx.Err() == nil {
		claimed, err := p.events.ClaimBatch(ctx, p.now().UTC(), p.batchSize)
		if err != nil {
			logger.Error("event_claim_failed", zap.Error(err))
			return
		}
		if len(claimed) == 0 {
			return
		}
		for _, ev := range claimed {
			p.processEvent(ctx, logger, ev)
		}
	}
}

func (p *Processor) processEvent(ctx context.Context, logger *zap.Logger, ev event.Event) {
	start := p.now()

	hctx, cancel := context.WithTimeout(ctx, p.handlerTimeout)
	handled, err := p.registry.Dispatch(hctx, ev)
	cancel()

	if err == nil {
		// Unhandled types complete too: recording the event is the whole
		// effect, and a redelivery must still dedup against it.
		if markErr := p.events.MarkProcessed(ctx, ev.ID); markErr != nil {
			logger.Error("event_mark_processed_failed",
				zap.Error(markErr),
				zap.String("event_id", ev.ID),
			)
			return
		}
		metrics.EventsProcessedTotal.Inc()
		metrics.ProcessingDuration.Observe(p.now().Sub(start).Seconds())
		logger.Info("event_processed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Int("attempts", ev.Attempts),
			zap.Bool("handled", handled),
		)
		return
	}

	// ev.Attempts already counts this attempt; ClaimBatch incremented it.
	if ev.Attempts >= p.maxAttempts {
		if markErr := p.events.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
			logger.Error("event_mark_failed_failed",
				zap.Error(markErr),
				zap.String("event_id", ev.ID),
			)
			return
		}
		metrics.EventsFailedTotal.Inc()
		logger.Error("event_attempts_exhausted",
			zap.Error(err),
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Int("attempts", ev.Attempts),
		)
		return
	}

	nextAttempt := p.now().UTC().Add(backoffDuration(ev.Attempts))
	if markErr := p.events.MarkRetry(ctx, ev.ID, err.Error(), nextAttempt); markErr != nil {
		logger.Error("event_mark_retry_failed",
			zap.Error(markErr),
			zap.String("event_id", ev.ID),
		)
		return
	}
	metrics.EventsRetriedTotal.Inc()
	logger.Warn("event_attempt_failed",
		zap.Error(err),
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.Int("attempts", ev.Attempts),
		zap.Time("next_attempt_at", nextAttempt),
	)
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 10 * time.Second
	}

	maxBackoff := 5 * time.Minute
	base := 10 * time.Second
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}

	d := base * time.Duration(1<<shift)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
