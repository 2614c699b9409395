package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/philiph/saml2-core/internal/core/ports"
)

// PrometheusMetricsRecorder records protocol outcomes using Prometheus.
type PrometheusMetricsRecorder struct {
	ssoResultsTotal        *prometheus.CounterVec
	sloResultsTotal        *prometheus.CounterVec
	artifactResolvesTotal  *prometheus.CounterVec
	artifactResolveSeconds prometheus.Histogram
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	ssoResultsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saml2_core_sso_results_total",
		Help: "Total SSO responses processed, by binding and outcome",
	}, []string{"binding", "result"})

	sloResultsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saml2_core_slo_results_total",
		Help: "Total single-logout messages processed, by initiator and outcome",
	}, []string{"initiator", "result"})

	artifactResolvesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saml2_core_artifact_resolves_total",
		Help: "Total artifact resolution calls to the IdP",
	}, []string{"result"})

	artifactResolveSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "saml2_core_artifact_resolve_duration_seconds",
		Help:    "Latency of artifact resolution calls",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(
		ssoResultsTotal,
		sloResultsTotal,
		artifactResolvesTotal,
		artifactResolveSeconds,
	)

	return &PrometheusMetricsRecorder{
		ssoResultsTotal:        ssoResultsTotal,
		sloResultsTotal:        sloResultsTotal,
		artifactResolvesTotal:  artifactResolvesTotal,
		artifactResolveSeconds: artifactResolveSeconds,
	}
}

// RecordSSOResult records the outcome of one SSO response. An empty
// errorCode means success.
func (p *PrometheusMetricsRecorder) RecordSSOResult(binding string, errorCode string) {
	p.ssoResultsTotal.WithLabelValues(binding, resultLabel(errorCode)).Inc()
}

// RecordSLOResult records the outcome of one single-logout exchange.
func (p *PrometheusMetricsRecorder) RecordSLOResult(initiator string, errorCode string) {
	p.sloResultsTotal.WithLabelValues(initiator, resultLabel(errorCode)).Inc()
}

// RecordArtifactResolve records one artifact resolution call.
func (p *PrometheusMetricsRecorder) RecordArtifactResolve(success bool, seconds float64) {
	result := "failure"
	if success {
		result = "success"
	}
	p.artifactResolvesTotal.WithLabelValues(result).Inc()
	p.artifactResolveSeconds.Observe(seconds)
}

func resultLabel(errorCode string) string {
	if errorCode == "" {
		return "success"
	}
	return errorCode
}

// Ensure PrometheusMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
