package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spkeasy-social/spkeasy/pkg/metrics"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

// queueMetrics is the Prometheus implementation of queue.Metrics.
type queueMetrics struct {
	published *prometheus.CounterVec
	completed *prometheus.CounterVec
	aborted   *prometheus.CounterVec
	retried   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	depth     *prometheus.GaugeVec
}

// NewQueueMetrics creates a Prometheus-backed queue.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() queue.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		published: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_queue_jobs_published_total",
				Help: "Total number of jobs published by job name",
			},
			[]string{"name"},
		),
		completed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_queue_jobs_completed_total",
				Help: "Total number of jobs completed successfully by job name",
			},
			[]string{"name"},
		),
		aborted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_queue_jobs_aborted_total",
				Help: "Total number of jobs aborted without retry by job name",
			},
			[]string{"name"},
		),
		retried: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_queue_jobs_retried_total",
				Help: "Total number of job retries scheduled by job name",
			},
			[]string{"name"},
		),
		failed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_queue_jobs_failed_total",
				Help: "Total number of jobs quarantined after exhausting retries by job name",
			},
			[]string{"name"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "spkeasy_queue_job_duration_milliseconds",
				Help: "Duration of completed job handlers in milliseconds",
				Buckets: []float64{
					10,     // 10ms - single-recipient deletes
					50,     // 50ms
					100,    // 100ms
					500,    // 500ms - add-recipient with key service round trip
					1000,   // 1s
					5000,   // 5s - rotation batches
					15000,  // 15s
					60000,  // 1m
					300000, // 5m - full rotation of a large author
				},
			},
			[]string{"name"},
		),
		depth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spkeasy_queue_depth",
				Help: "Current number of jobs per queue state",
			},
			[]string{"state"}, // "created", "active", "completed", "failed"
		),
	}
}

func (m *queueMetrics) JobPublished(name string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(name).Inc()
}

func (m *queueMetrics) JobCompleted(name string, duration time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(duration.Seconds() * 1000)
}

func (m *queueMetrics) JobAborted(name string) {
	if m == nil {
		return
	}
	m.aborted.WithLabelValues(name).Inc()
}

func (m *queueMetrics) JobRetried(name string) {
	if m == nil {
		return
	}
	m.retried.WithLabelValues(name).Inc()
}

func (m *queueMetrics) JobFailed(name string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(name).Inc()
}

func (m *queueMetrics) QueueDepth(state string, count int64) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(state).Set(float64(count))
}
