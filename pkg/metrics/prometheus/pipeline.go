package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zipcase/zipcase/pkg/metrics"
	"github.com/zipcase/zipcase/pkg/pipeline"
)

func init() {
	metrics.RegisterPipelineMetricsConstructor(NewPipelineMetrics)
}

// pipelineMetrics is the Prometheus implementation of pipeline.Metrics.
type pipelineMetrics struct {
	dispatchesTotal    *prometheus.CounterVec
	messagesDispatched *prometheus.CounterVec
	tasksTotal         *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
}

// NewPipelineMetrics creates a new Prometheus-backed pipeline metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPipelineMetrics() pipeline.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &pipelineMetrics{
		dispatchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_pipeline_dispatches_total",
				Help: "Total number of coordinator dispatch batches per stage queue",
			},
			[]string{"stage"}, // "search", "data"
		),
		messagesDispatched: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_pipeline_messages_dispatched_total",
				Help: "Total number of messages dispatched to stage queues",
			},
			[]string{"stage"}, // "search", "data"
		),
		tasksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_pipeline_tasks_total",
				Help: "Total number of worker task executions by stage and outcome",
			},
			[]string{"stage", "outcome"}, // "search"/"data", "completed"/"skipped"/"not_found"/"failed"
		),
		taskDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zipcase_pipeline_task_duration_milliseconds",
				Help: "Duration of worker task executions in milliseconds",
				Buckets: []float64{
					10,    // 10ms - short-circuited duplicates
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - portal round trip
					5000,  // 5s - fresh session authentication
					15000, // 15s
					60000, // 60s - portal under load
				},
			},
			[]string{"stage"},
		),
	}
}

func (m *pipelineMetrics) ObserveDispatch(stage string, messages int) {
	if m == nil {
		return
	}

	m.dispatchesTotal.WithLabelValues(stage).Inc()
	if messages > 0 {
		m.messagesDispatched.WithLabelValues(stage).Add(float64(messages))
	}
}

func (m *pipelineMetrics) ObserveTask(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.tasksTotal.WithLabelValues(stage, outcome).Inc()
	m.taskDuration.WithLabelValues(stage).Observe(d.Seconds() * 1000)
}
