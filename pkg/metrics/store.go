package metrics

import (
	"github.com/zipcase/zipcase/pkg/kvstore"
)

// NewStoreMetrics creates a new Prometheus-backed kvstore.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to store implementations,
// which results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	storeMetrics := metrics.NewStoreMetrics()
//	store := dynamo.New(ctx, config, storeMetrics)
//
//	// Without metrics (zero overhead)
//	store := dynamo.New(ctx, config, nil)
func NewStoreMetrics() kvstore.Metrics {
	if !IsEnabled() {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusStoreMetrics()
}

// newPrometheusStoreMetrics is implemented in pkg/metrics/prometheus/store.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusStoreMetrics func() kvstore.Metrics

// RegisterStoreMetricsConstructor registers the Prometheus store metrics constructor.
// Called by pkg/metrics/prometheus/store.go during package initialization.
func RegisterStoreMetricsConstructor(constructor func() kvstore.Metrics) {
	newPrometheusStoreMetrics = constructor
}
