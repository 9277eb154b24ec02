package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookRequests, webhookRedeliveries)
}

var (
	// result: provisioned|already_completed|failed|ignored|invalid_signature|bad_request|error
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound processor webhooks by processor and handling result.",
		},
		[]string{"processor", "result"},
	)

	webhookRedeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_redeliveries_total",
			Help: "Webhook deliveries whose (event, object) pair had already been recorded.",
		},
		[]string{"processor"},
	)
)

func IncWebhook(processor, result string) {
	webhookRequests.WithLabelValues(norm(processor), norm(result)).Inc()
}

func IncWebhookRedelivery(processor string) {
	webhookRedeliveries.WithLabelValues(norm(processor)).Inc()
}
