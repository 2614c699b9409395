package metrics

import (
	"github.com/philiph/saml2-core/internal/core/ports"
)

// NoopMetricsRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordSSOResult is a no-op.
func (n *NoopMetricsRecorder) RecordSSOResult(binding string, errorCode string) {}

// RecordSLOResult is a no-op.
func (n *NoopMetricsRecorder) RecordSLOResult(initiator string, errorCode string) {}

// RecordArtifactResolve is a no-op.
func (n *NoopMetricsRecorder) RecordArtifactResolve(success bool, seconds float64) {}

// Ensure NoopMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*NoopMetricsRecorder)(nil)
