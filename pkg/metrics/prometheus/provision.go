// Package prometheus implements the Prometheus-backed metrics collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProvisionMetrics is the Prometheus implementation of provision.Metrics.
type ProvisionMetrics struct {
	submissions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
}

// NewProvisionMetrics registers the provisioning collectors with reg.
func NewProvisionMetrics(reg prometheus.Registerer) *ProvisionMetrics {
	return &ProvisionMetrics{
		submissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webauthd_provision_submissions_total",
				Help: "Total number of provisioning submissions by outcome",
			},
			[]string{"outcome"}, // "ok", "degraded", "validation_failed", "auth_failed", "conflict", "account_failed"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "webauthd_provision_duration_seconds",
				Help: "Duration of provisioning submissions in seconds",
				Buckets: []float64{
					0.01, // validation-only aborts
					0.05,
					0.1,
					0.5, // one backend tool round trip
					1,
					5,
					15,
					30, // backend tool timeout territory
				},
			},
			[]string{"outcome"},
		),
		stepFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webauthd_provision_step_failures_total",
				Help: "Total number of degraded best-effort steps",
			},
			[]string{"step"}, // "install", "secondary", "settings"
		),
	}
}

// ObserveSubmission implements provision.Metrics.
func (m *ProvisionMetrics) ObserveSubmission(outcome string, d time.Duration) {
	m.submissions.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveStepFailure implements provision.Metrics.
func (m *ProvisionMetrics) ObserveStepFailure(step string) {
	m.stepFailures.WithLabelValues(step).Inc()
}
