package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/metrics"
)

func init() {
	metrics.RegisterStoreMetricsConstructor(NewStoreMetrics)
}

// storeMetrics is the Prometheus implementation of kvstore.Metrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates a new Prometheus-backed store metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() kvstore.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_store_operations_total",
				Help: "Total number of key-value store operations by operation type and status",
			},
			[]string{"operation", "status"}, // "GetItem"/"PutItem"/..., "success"/"error"
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zipcase_store_operation_duration_milliseconds",
				Help: "Duration of key-value store operations in milliseconds",
				Buckets: []float64{
					1,    // 1ms - local memory store
					5,    // 5ms - DynamoDB same-region reads
					10,   // 10ms
					25,   // 25ms
					50,   // 50ms
					100,  // 100ms - conditional writes
					250,  // 250ms
					500,  // 500ms
					1000, // 1s - batch operations, throttling retries
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}
