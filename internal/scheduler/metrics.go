package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

var (
	tasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_submitted_total",
			Help:      "Total tasks accepted into the queue",
		},
		[]string{"kind"},
	)

	tasksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_rejected_total",
			Help:      "Total tasks rejected because the queue was full",
		},
		[]string{"kind"},
	)

	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_processed_total",
			Help:      "Total tasks processed by outcome",
		},
		[]string{"kind", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Time spent in a task handler",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of tasks waiting in the queue",
		},
	)
)

// recordTaskSubmitted records an accepted submission.
func recordTaskSubmitted(kind string) {
	tasksSubmitted.WithLabelValues(kind).Inc()
}

// recordTaskRejected records a submission rejected with a full queue.
func recordTaskRejected(kind string) {
	tasksRejected.WithLabelValues(kind).Inc()
}

// recordTaskProcessed records a processing outcome.
func recordTaskProcessed(kind, status string) {
	tasksProcessed.WithLabelValues(kind, status).Inc()
}

// recordTaskDuration records handler execution time.
func recordTaskDuration(kind string, duration time.Duration) {
	taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// recordQueueDepth updates the queue depth gauge.
func recordQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}
