// Package metrics exposes prometheus instrumentation for the
// provisioning and audit pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the services report into.
type Metrics struct {
	ProvisionAttempts *prometheus.CounterVec
	ProvisionDuration prometheus.Histogram
	AuditEmitFailures prometheus.Counter
	AuditQueueDepth   prometheus.GaugeFunc
	RateLimitRejects  prometheus.Counter
}

// New registers all collectors on the given registerer. queueDepth
// reports the current audit emitter backlog.
func New(reg prometheus.Registerer, queueDepth func() float64) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProvisionAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provio_provision_attempts_total",
			Help: "Provisioning attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		ProvisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "provio_provision_duration_seconds",
			Help:    "Duration of single provisioning attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		AuditEmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "provio_audit_emit_failures_total",
			Help: "Audit events that could not be persisted after retry.",
		}),
		AuditQueueDepth: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "provio_audit_queue_depth",
			Help: "Audit events waiting in the emitter queue.",
		}, queueDepth),
		RateLimitRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "provio_ratelimit_rejects_total",
			Help: "Requests rejected by the per-client rate limit.",
		}),
	}
}
