package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spkeasy-social/spkeasy/pkg/metrics"
	"github.com/spkeasy-social/spkeasy/pkg/propagation"
)

// propagationMetrics is the Prometheus implementation of propagation.Metrics.
type propagationMetrics struct {
	envelopesRecrypted *prometheus.CounterVec
	sessionsRevoked    *prometheus.CounterVec
	sessionKeysDeleted *prometheus.CounterVec
}

// NewPropagationMetrics creates a Prometheus-backed propagation.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPropagationMetrics() propagation.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &propagationMetrics{
		envelopesRecrypted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_propagation_envelopes_recrypted_total",
				Help: "Total number of DEK envelopes recrypted by service and job kind",
			},
			[]string{"service", "kind"}, // kind: "add-recipient", "update-session-keys"
		),
		sessionsRevoked: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_propagation_sessions_revoked_total",
				Help: "Total number of sessions revoked by propagation jobs",
			},
			[]string{"service"},
		),
		sessionKeysDeleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spkeasy_propagation_session_keys_deleted_total",
				Help: "Total number of recipient session keys deleted by propagation jobs",
			},
			[]string{"service"},
		),
	}
}

func (m *propagationMetrics) EnvelopesRecrypted(service, kind string, count int) {
	if m == nil {
		return
	}
	m.envelopesRecrypted.WithLabelValues(service, kind).Add(float64(count))
}

func (m *propagationMetrics) SessionsRevoked(service string, count int64) {
	if m == nil {
		return
	}
	m.sessionsRevoked.WithLabelValues(service).Add(float64(count))
}

func (m *propagationMetrics) SessionKeysDeleted(service string, count int64) {
	if m == nil {
		return
	}
	m.sessionKeysDeleted.WithLabelValues(service).Add(float64(count))
}
