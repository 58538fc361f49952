package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(orderWebhooksTotal) }

var orderWebhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_webhooks_total",
		Help: "Outbound order webhook deliveries by result.",
	},
	[]string{"result"}, // 'sent', 'failed', 'dropped', 'disabled'
)

func IncOrderWebhook(result string) {
	orderWebhooksTotal.WithLabelValues(norm(result)).Inc()
}
