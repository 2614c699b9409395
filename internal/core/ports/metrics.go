package ports

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordSSOResult records the outcome of an SSO round trip. The
	// errorCode is empty on success.
	RecordSSOResult(binding string, errorCode string)

	// RecordSLOResult records the outcome of an SLO round trip.
	RecordSLOResult(initiator string, errorCode string)

	// RecordArtifactResolve records an ArtifactResolve round trip and
	// its duration in seconds.
	RecordArtifactResolve(success bool, seconds float64)
}
