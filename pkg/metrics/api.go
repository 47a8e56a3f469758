package metrics

import (
	"github.com/zipcase/zipcase/pkg/api"
)

// NewAPIMetrics creates a new Prometheus-backed api.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should leave Deps.Metrics nil, which
// results in zero overhead.
func NewAPIMetrics() api.Metrics {
	if !IsEnabled() {
		return nil
	}

	return newPrometheusAPIMetrics()
}

// newPrometheusAPIMetrics is implemented in pkg/metrics/prometheus/api.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusAPIMetrics func() api.Metrics

// RegisterAPIMetricsConstructor registers the Prometheus API metrics constructor.
// Called by pkg/metrics/prometheus/api.go during package initialization.
func RegisterAPIMetricsConstructor(constructor func() api.Metrics) {
	newPrometheusAPIMetrics = constructor
}
