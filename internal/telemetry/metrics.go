package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ImportsStarted = prometheus.NewCounter(prometheus.CounterOpts{Name: "import_runs_started_total", Help: "Artist imports started"})

	EnqueueCounter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_enqueued_total", Help: "Jobs enqueued"}, []string{"queue"})
	JobsCompleted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs completed successfully"}, []string{"queue"})
	JobsRetried    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_retried_total", Help: "Jobs that failed and were rescheduled"}, []string{"queue"})
	JobsFailed     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs failed permanently"}, []string{"queue"})

	QueueDepth    = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_ready_depth", Help: "Ready queue depth"}, []string{"queue"})
	InFlightGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs currently leased"}, []string{"queue"})

	QueueThrottled = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_throttled_total", Help: "Dequeues deferred by the queue-level bucket"}, []string{"queue"})

	ProviderRequests   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_requests_total", Help: "Outbound provider calls by outcome"}, []string{"provider", "outcome"})
	RateLimitTimeouts  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_rate_limit_timeouts_total", Help: "Limiter acquisitions that timed out"}, []string{"provider"})
	BreakerState       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "provider_breaker_state", Help: "Breaker state: 0 closed, 1 half-open, 2 open"}, []string{"provider"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_breaker_transitions_total", Help: "Breaker state transitions"}, []string{"provider", "from", "to"})

	ItemsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "import_items_skipped_total", Help: "Sub-items skipped during a stage"}, []string{"queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ImportsStarted,
			EnqueueCounter,
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			QueueDepth,
			InFlightGauge,
			QueueThrottled,
			ProviderRequests,
			RateLimitTimeouts,
			BreakerState,
			BreakerTransitions,
			ItemsSkipped,
		)
	})
	return promhttp.Handler()
}
