package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

var (
	orchestrationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "runs_total",
			Help:      "Total orchestration runs by flow and terminal state",
		},
		[]string{"flow", "state"},
	)

	orchestrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "run_duration_seconds",
			Help:      "Orchestration run duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"flow"},
	)
)

// recordRun records a finished orchestration run.
func recordRun(flow, state string, duration time.Duration) {
	orchestrationRuns.WithLabelValues(flow, state).Inc()
	orchestrationDuration.WithLabelValues(flow).Observe(duration.Seconds())
}
