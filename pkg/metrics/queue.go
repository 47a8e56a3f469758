package metrics

import (
	"github.com/zipcase/zipcase/pkg/queue"
)

// NewQueueMetrics creates a new Prometheus-backed queue.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to queue implementations,
// which results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	queueMetrics := metrics.NewQueueMetrics()
//	q := sqs.New(ctx, config, queueMetrics)
//
//	// Without metrics (zero overhead)
//	q := sqs.New(ctx, config, nil)
func NewQueueMetrics() queue.Metrics {
	if !IsEnabled() {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusQueueMetrics()
}

// newPrometheusQueueMetrics is implemented in pkg/metrics/prometheus/queue.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusQueueMetrics func() queue.Metrics

// RegisterQueueMetricsConstructor registers the Prometheus queue metrics constructor.
// Called by pkg/metrics/prometheus/queue.go during package initialization.
func RegisterQueueMetricsConstructor(constructor func() queue.Metrics) {
	newPrometheusQueueMetrics = constructor
}
