package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished = "published"
	OutboxRetried   = "retried"
	OutboxParked    = "parked"
	OutboxDeferred  = "deferred"
)

// OutboxMetrics tracks marketplace events leaving the outbox.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	lag    *prometheus.HistogramVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Time from the state change that queued an event to its publication.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 15, 60, 300, 900},
	}, []string{"event_type"})
	reg.MustRegister(events, lag)
	return &OutboxMetrics{events: events, lag: lag}
}

// ObserveEvent counts one row by outcome.
func (o *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveLag records how long a published event waited in the outbox.
func (o *OutboxMetrics) ObserveLag(eventType string, lag time.Duration) {
	if o == nil || o.lag == nil || lag < 0 {
		return
	}
	o.lag.WithLabelValues(normalizeLabel(eventType)).Observe(lag.Seconds())
}
