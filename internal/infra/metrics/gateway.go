package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayRequests,
		gatewayDuration,
	)
}

var (
	// op: create_charge|create_subscription|query_status
	// result: ok|error|bypass
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Calls to the PIX provider by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of PIX provider calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"op"},
	)
)

func ObserveGateway(op string, d time.Duration, err error) {
	gatewayRequests.WithLabelValues(norm(op), result(err)).Inc()
	gatewayDuration.WithLabelValues(norm(op)).Observe(seconds(d))
}

func IncGatewayBypass(op string) {
	gatewayRequests.WithLabelValues(norm(op), "bypass").Inc()
}
