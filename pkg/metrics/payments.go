package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts gateway traffic: checkout sessions opened and webhook
// deliveries by event type and outcome.
type PaymentMetrics struct {
	sessions *prometheus.CounterVec
	webhooks *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Checkout session attempts by outcome.",
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stripe_webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(sessions, webhooks)
	return &PaymentMetrics{sessions: sessions, webhooks: webhooks}
}

// ObserveCheckoutSession counts one checkout session attempt.
func (p *PaymentMetrics) ObserveCheckoutSession(outcome string) {
	if p == nil || p.sessions == nil {
		return
	}
	p.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveWebhookEvent counts one webhook delivery.
func (p *PaymentMetrics) ObserveWebhookEvent(eventType, outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
