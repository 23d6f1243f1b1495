package config

import (
	"net/http"

	"github.com/spkeasy-social/spkeasy/pkg/metrics"
	"github.com/spkeasy-social/spkeasy/pkg/metrics/prometheus"
	"github.com/spkeasy-social/spkeasy/pkg/propagation"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// MetricsResult carries the metrics server and the per-subsystem
// collectors built by InitializeMetrics. Every field is nil when metrics
// are disabled; all consumers treat nil collectors as no-ops.
type MetricsResult struct {
	// Server is the unstarted /metrics HTTP server.
	Server *http.Server

	// Requests observes XRPC request outcomes.
	Requests xrpc.Metrics

	// Queue observes job queue lifecycle events.
	Queue queue.Metrics

	// Propagation observes propagation job effects.
	Propagation propagation.Metrics
}

// InitializeMetrics initializes the process-wide Prometheus registry when
// the configuration enables metrics, and builds the collectors each
// subsystem consumes.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	metrics.InitRegistry()

	return MetricsResult{
		Server:      metrics.NewServer(cfg.Metrics.Port),
		Requests:    prometheus.NewRequestMetrics(),
		Queue:       prometheus.NewQueueMetrics(),
		Propagation: prometheus.NewPropagationMetrics(),
	}
}
