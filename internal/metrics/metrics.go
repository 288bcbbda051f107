package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest-side counters. "accepted" and "duplicate" both acknowledge the
// provider; they are split so redelivery storms are visible.
var (
	EventsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_accepted_total",
		Help: "Events admitted to the log for the first time",
	})

	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_duplicate_total",
		Help: "Redeliveries of already-admitted events",
	})

	EventsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ez_events_rejected_total",
		Help: "Events rejected at the gateway boundary",
	}, []string{"reason"})
)

// Worker-side counters and timings.
var (
	EventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_processed_total",
		Help: "Events that completed fulfillment",
	})

	EventsRetriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_retried_total",
		Help: "Processing attempts that failed and were requeued",
	})

	EventsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_failed_total",
		Help: "Events that exhausted their attempt budget",
	})

	EventsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ez_events_reclaimed_total",
		Help: "Events returned to the queue after a lease expired",
	})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ez_event_processing_duration_seconds",
		Help:    "Duration of one fulfillment attempt",
		Buckets: prometheus.DefBuckets,
	})
)

// Rejection reasons for EventsRejectedTotal.
const (
	ReasonSignature = "signature"
	ReasonTimestamp = "timestamp"
	ReasonPayload   = "payload"
	ReasonStorage   = "storage"
)
