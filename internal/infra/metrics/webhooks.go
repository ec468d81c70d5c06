package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		webhookSignatureFailures,
	)
}

var (
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Webhook deliveries by event type and outcome (processed/duplicate/ignored/failed).",
		},
		[]string{"event_type", "outcome"},
	)

	webhookSignatureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Deliveries rejected for a missing or invalid signature.",
		},
	)
)

func IncWebhook(eventType, outcome string) {
	webhooksTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}

func IncWebhookSignatureFailure() {
	webhookSignatureFailures.Inc()
}
