package metrics

import (
	"github.com/zipcase/zipcase/pkg/portal"
)

// NewPortalMetrics creates a new Prometheus-backed portal.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the portal client,
// which results in zero overhead.
func NewPortalMetrics() portal.Metrics {
	if !IsEnabled() {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusPortalMetrics()
}

// newPrometheusPortalMetrics is implemented in pkg/metrics/prometheus/portal.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusPortalMetrics func() portal.Metrics

// RegisterPortalMetricsConstructor registers the Prometheus portal metrics constructor.
// Called by pkg/metrics/prometheus/portal.go during package initialization.
func RegisterPortalMetricsConstructor(constructor func() portal.Metrics) {
	newPrometheusPortalMetrics = constructor
}
