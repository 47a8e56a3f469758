package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zipcase/zipcase/pkg/metrics"
	"github.com/zipcase/zipcase/pkg/portal"
)

func init() {
	metrics.RegisterPortalMetricsConstructor(NewPortalMetrics)
}

// portalMetrics is the Prometheus implementation of portal.Metrics.
type portalMetrics struct {
	loginsTotal       *prometheus.CounterVec
	loginDuration     prometheus.Histogram
	challengesTotal   *prometheus.CounterVec
	challengeDuration prometheus.Histogram
	searchesTotal     *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
}

// NewPortalMetrics creates a new Prometheus-backed portal metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPortalMetrics() portal.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &portalMetrics{
		loginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_portal_logins_total",
				Help: "Total number of portal authentication attempts by outcome",
			},
			[]string{"outcome"}, // "success", "invalid_credentials", "error"
		),
		loginDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "zipcase_portal_login_duration_milliseconds",
				Help: "Duration of full portal authentication flows in milliseconds",
				Buckets: []float64{
					500,   // 500ms
					1000,  // 1s - federation redirect chain
					2500,  // 2.5s
					5000,  // 5s - includes challenge solve
					10000, // 10s
					30000, // 30s - portal under load
				},
			},
		),
		challengesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_portal_challenges_total",
				Help: "Total number of bot-challenge solve attempts by status",
			},
			[]string{"status"}, // "solved", "failed"
		),
		challengeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "zipcase_portal_challenge_duration_milliseconds",
				Help: "Duration of bot-challenge proof-of-work solves in milliseconds",
				Buckets: []float64{
					100,   // 100ms
					250,   // 250ms
					500,   // 500ms
					1000,  // 1s - typical scrypt search
					2500,  // 2.5s
					5000,  // 5s - unlucky nonce hunt
					10000, // 10s
				},
			},
		),
		searchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipcase_portal_searches_total",
				Help: "Total number of portal searches and fetches by kind and outcome",
			},
			[]string{"kind", "outcome"}, // "case"/"name"/"summary", "success"/"not_found"/"error"
		),
		searchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "zipcase_portal_search_duration_milliseconds",
				Help: "Duration of portal searches and fetches in milliseconds",
				Buckets: []float64{
					250,   // 250ms
					500,   // 500ms
					1000,  // 1s - typical search round trip
					2500,  // 2.5s
					5000,  // 5s - summary page render
					10000, // 10s
					30000, // 30s - portal under load
				},
			},
			[]string{"kind"},
		),
	}
}

func (m *portalMetrics) ObserveLogin(outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.loginsTotal.WithLabelValues(outcome).Inc()
	m.loginDuration.Observe(d.Seconds() * 1000)
}

func (m *portalMetrics) ObserveChallenge(solved bool, d time.Duration) {
	if m == nil {
		return
	}

	status := "solved"
	if !solved {
		status = "failed"
	}

	m.challengesTotal.WithLabelValues(status).Inc()
	m.challengeDuration.Observe(d.Seconds() * 1000)
}

func (m *portalMetrics) ObserveSearch(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.searchesTotal.WithLabelValues(kind, outcome).Inc()
	m.searchDuration.WithLabelValues(kind).Observe(d.Seconds() * 1000)
}
