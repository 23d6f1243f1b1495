// Package prometheus implements the metrics interfaces consumed by the
// xrpc mux, the job queue, and the propagation handlers on top of the
// process-wide registry in pkg/metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spkeasy-social/spkeasy/pkg/metrics"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// requestMetrics is the Prometheus implementation of xrpc.Metrics.
type requestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequestMetrics creates a Prometheus-backed xrpc.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRequestMetrics() xrpc.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &requestMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_xrpc_requests_total",
				Help: "Total number of XRPC requests by method and HTTP status",
			},
			[]string{"method", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "spkeasy_xrpc_request_duration_milliseconds",
				Help: "Duration of XRPC request handling in milliseconds",
				Buckets: []float64{
					1,    // 1ms - indexed single-row reads
					5,    // 5ms
					10,   // 10ms
					25,   // 25ms
					50,   // 50ms - keypair generation
					100,  // 100ms
					250,  // 250ms
					500,  // 500ms
					1000, // 1s - synchronous rotation recrypts
					5000, // 5s
				},
			},
			[]string{"method"},
		),
	}
}

func (m *requestMetrics) RequestServed(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds() * 1000)
}
