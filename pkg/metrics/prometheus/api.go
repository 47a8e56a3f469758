package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zipcase/zipcase/pkg/api"
	"github.com/zipcase/zipcase/pkg/metrics"
)

func init() {
	metrics.RegisterAPIMetricsConstructor(NewAPIMetrics)
}

// apiMetrics is the Prometheus implementation of api.Metrics.
type apiMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewAPIMetrics creates a new Prometheus-backed API metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAPIMetrics() api.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &apiMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_api_requests_total",
				Help: "Total number of API requests by method, route pattern and status code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zipcase_api_request_duration_milliseconds",
				Help: "Duration of API requests in milliseconds",
				Buckets: []float64{
					1,      // 1ms - health checks
					5,      // 5ms - store reads
					25,     // 25ms
					100,    // 100ms - search ingest with store writes
					250,    // 250ms
					1000,   // 1s
					5000,   // 5s
					30000,  // 30s - credential verification logins
					120000, // 2m - logins that solve a bot challenge
				},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *apiMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds() * 1000)
}
