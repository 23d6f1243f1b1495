// Package metrics holds the process-wide Prometheus registry and the HTTP
// server that exposes it.
//
// Metrics are opt-in: call InitRegistry once at startup to enable
// collection. The constructors in pkg/metrics/prometheus return nil when
// the registry was never initialized, and every consumer treats a nil
// collector as a no-op, so a process that never calls InitRegistry pays
// zero overhead.
//
// The interfaces the collectors implement live with their consumers
// (xrpc.Metrics, queue.Metrics, propagation.Metrics); this package knows
// nothing about what is being measured.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry *prometheus.Registry

// InitRegistry creates the process-wide registry and registers the
// standard Go runtime and process collectors. Call it once before
// building collectors; calling it again is a no-op.
//
// Not safe for concurrent use. Initialize metrics during startup, before
// any goroutine reads the registry.
func InitRegistry() {
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// NewServer returns an unstarted HTTP server exposing the registry at
// /metrics on the given port. Returns nil when metrics are disabled.
func NewServer(port int) *http.Server {
	if registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
