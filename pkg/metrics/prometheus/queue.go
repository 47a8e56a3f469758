package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zipcase/zipcase/pkg/metrics"
	"github.com/zipcase/zipcase/pkg/queue"
)

func init() {
	metrics.RegisterQueueMetricsConstructor(NewQueueMetrics)
}

// queueMetrics is the Prometheus implementation of queue.Metrics.
type queueMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	messagesSent      *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
}

// NewQueueMetrics creates a new Prometheus-backed queue metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() queue.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_queue_operations_total",
				Help: "Total number of queue operations by operation type, queue and status",
			},
			[]string{"operation", "queue", "status"}, // "send"/"receive"/"delete", queue name, "success"/"error"
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zipcase_queue_operation_duration_milliseconds",
				Help: "Duration of queue operations in milliseconds",
				Buckets: []float64{
					5,     // 5ms
					25,    // 25ms - SQS same-region send
					50,    // 50ms
					100,   // 100ms - batch sends
					500,   // 500ms
					1000,  // 1s - short-poll receive
					5000,  // 5s
					20000, // 20s - long-poll receive at max wait
				},
			},
			[]string{"operation", "queue"},
		),
		messagesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_queue_messages_sent_total",
				Help: "Total number of messages successfully sent per queue",
			},
			[]string{"queue"},
		),
		messagesReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_queue_messages_received_total",
				Help: "Total number of messages received per queue",
			},
			[]string{"queue"},
		),
	}
}

func (m *queueMetrics) ObserveSend(queueName string, messages int, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues("send", queueName, status).Inc()
	m.operationDuration.WithLabelValues("send", queueName).Observe(duration.Seconds() * 1000)

	if err == nil && messages > 0 {
		m.messagesSent.WithLabelValues(queueName).Add(float64(messages))
	}
}

func (m *queueMetrics) ObserveReceive(queueName string, messages int, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues("receive", queueName, status).Inc()
	m.operationDuration.WithLabelValues("receive", queueName).Observe(duration.Seconds() * 1000)

	if err == nil && messages > 0 {
		m.messagesReceived.WithLabelValues(queueName).Add(float64(messages))
	}
}

func (m *queueMetrics) ObserveDelete(queueName string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues("delete", queueName, status).Inc()
	m.operationDuration.WithLabelValues("delete", queueName).Observe(duration.Seconds() * 1000)
}
