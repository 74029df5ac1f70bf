package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// APIRequestsTotal counts remote API calls by endpoint and outcome.
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snaglog",
		Subsystem: "client",
		Name:      "api_requests_total",
		Help:      "Total number of remote API requests, labeled by endpoint and result.",
	}, []string{"endpoint", "result"})

	// APIRequestDuration is the wall time of each remote API call.
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snaglog",
		Subsystem: "client",
		Name:      "api_request_duration_seconds",
		Help:      "Duration of remote API requests.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	// PollAttemptsTotal counts generation poll attempts by outcome.
	PollAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snaglog",
		Subsystem: "generation",
		Name:      "poll_attempts_total",
		Help:      "Total number of document generation poll attempts, labeled by result.",
	}, []string{"result"})

	// PreviewsActive is the number of photo previews currently held.
	PreviewsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "snaglog",
		Subsystem: "intake",
		Name:      "previews_active",
		Help:      "Number of photo preview resources currently allocated.",
	})
)

// Register registers all collectors with the given registerer. Safe to call
// more than once.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(
			APIRequestsTotal,
			APIRequestDuration,
			PollAttemptsTotal,
			PreviewsActive,
		)
	})
}
