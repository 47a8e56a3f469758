package metrics

import (
	"github.com/zipcase/zipcase/pkg/pipeline"
)

// NewPipelineMetrics creates a new Prometheus-backed pipeline.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the coordinator and
// workers, which results in zero overhead.
func NewPipelineMetrics() pipeline.Metrics {
	if !IsEnabled() {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusPipelineMetrics()
}

// newPrometheusPipelineMetrics is implemented in pkg/metrics/prometheus/pipeline.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusPipelineMetrics func() pipeline.Metrics

// RegisterPipelineMetricsConstructor registers the Prometheus pipeline metrics constructor.
// Called by pkg/metrics/prometheus/pipeline.go during package initialization.
func RegisterPipelineMetricsConstructor(constructor func() pipeline.Metrics) {
	newPrometheusPipelineMetrics = constructor
}
