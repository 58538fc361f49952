package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(sweepRunsTotal, sweepDuration, sweepItemsTotal) }

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of sweep runs, labeled by job and result.",
		},
		[]string{"job", "result"}, // result: 'ok', 'error', 'skipped'
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of sweep runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job"},
	)

	sweepItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_items_total",
			Help: "Rows changed by sweep runs, labeled by job.",
		},
		[]string{"job"},
	)
)

func ObserveSweep(job string, d time.Duration, items int, err error) {
	sweepRunsTotal.WithLabelValues(norm(job), result(err)).Inc()
	sweepDuration.WithLabelValues(norm(job)).Observe(seconds(d))
	if items > 0 {
		sweepItemsTotal.WithLabelValues(norm(job)).Add(float64(items))
	}
}

func IncSweepSkipped(job string) {
	sweepRunsTotal.WithLabelValues(norm(job), "skipped").Inc()
}
