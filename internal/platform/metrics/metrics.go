// Package metrics registers the Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Logins          *prometheus.CounterVec
	UsersCreated    prometheus.Counter
	TokenRejections *prometheus.CounterVec
	SSODurationMs   prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_logins_total",
			Help: "Login attempts by identity provider and outcome",
		}, []string{"provider", "outcome"}),
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_users_created_total",
			Help: "Total number of users created in the system",
		}),
		TokenRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_token_rejections_total",
			Help: "Session tokens rejected by the authenticator, by reason",
		}, []string{"reason"}),
		SSODurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_sso_validate_duration_ms",
			Help:    "Latency of external SSO validation calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}

// RecordLogin increments the login counter for a provider/outcome pair.
func (m *Metrics) RecordLogin(provider, outcome string) {
	m.Logins.WithLabelValues(provider, outcome).Inc()
}

// RecordTokenRejection increments the rejection counter for a reason.
func (m *Metrics) RecordTokenRejection(reason string) {
	m.TokenRejections.WithLabelValues(reason).Inc()
}
