package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Worker metrics

	CheckPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulsewatch",
		Name:      "check_pickup_latency_seconds",
		Help:      "Time from a row becoming due to a worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	CheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulsewatch",
		Name:      "check_duration_seconds",
		Help:      "Duration of check execution, by monitor type.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"type"})

	ChecksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsewatch",
		Name:      "worker_checks_in_flight",
		Help:      "Number of checks currently executing in this worker.",
	})

	ChecksProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "checks_processed_total",
		Help:      "Total checks finished, by resulting status.",
	}, []string{"status"})

	ClaimBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulsewatch",
		Name:      "claim_batch_size",
		Help:      "Rows claimed per poll.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	// Sweeper metrics

	SweeperReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "sweeper_released_total",
		Help:      "Stale claims released by the sweeper.",
	})

	// Pub/sub metrics

	PublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "pubsub_publishes_total",
		Help:      "Messages published, by channel.",
	}, []string{"channel"})

	PublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "pubsub_publish_failures_total",
		Help:      "Publishes that failed; the pipeline continues regardless.",
	})

	// Relay metrics

	RelayEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "relay_events_total",
		Help:      "Events the relay delivered, by channel.",
	}, []string{"channel"})

	RelayErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "relay_errors_total",
		Help:      "Events the relay dropped as malformed.",
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsewatch",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulsewatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		CheckPickupLatency,
		CheckDuration,
		ChecksInFlight,
		ChecksProcessedTotal,
		ClaimBatchSize,
		SweeperReleasedTotal,
		PublishesTotal,
		PublishFailuresTotal,
		RelayEventsTotal,
		RelayErrorsTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}
