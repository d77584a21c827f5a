package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// OperationsTotal counts orchestrator operations by operation and outcome.
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pest",
		Subsystem: "diagnosis",
		Name:      "operations_total",
		Help:      "Total number of analyze/plan operations, labeled by operation and result (ok, invalid_input, validation_error, transport_error, malformed_response, error).",
	}, []string{"operation", "result"})

	// GenerationDurationSeconds is the time spent in one backend round trip.
	GenerationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pest",
		Subsystem: "diagnosis",
		Name:      "generation_duration_seconds",
		Help:      "Time spent waiting for the generation backend, labeled by prompt kind and source.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"kind", "source"})

	// ImageBytes is the size of the image attachment actually sent to the backend.
	ImageBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pest",
		Subsystem: "diagnosis",
		Name:      "image_bytes",
		Help:      "Size in bytes of prepared image attachments.",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
	})

	// BreakerOpen is 1 while the backend circuit breaker is open.
	BreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pest",
		Subsystem: "diagnosis",
		Name:      "backend_breaker_open",
		Help:      "Whether the generation backend circuit breaker is currently open.",
	})

	// EventPublishErrorsTotal counts failed event publications.
	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pest",
		Subsystem: "diagnosis",
		Name:      "event_publish_errors_total",
		Help:      "Total number of diagnosis/plan events that could not be published.",
	})

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pest",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the per-IP rate limiter.",
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			OperationsTotal,
			GenerationDurationSeconds,
			ImageBytes,
			BreakerOpen,
			EventPublishErrorsTotal,
			RateLimitedTotal,
		)
	})
}
