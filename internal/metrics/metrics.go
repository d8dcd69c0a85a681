package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "warrantyvault"
	subsystem = "ai"
)

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time taken to process an extraction request.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint", "status"},
	)

	fieldOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "field_outcomes_total",
			Help:      "Structured field extraction outcomes.",
		},
		[]string{"field", "outcome"}, // ok, empty, failed
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load the structured field model.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model", "result"},
	)

	ocrConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ocr_confidence",
			Help:      "Mean line confidence of recognized pages.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits.",
		},
		[]string{"type"}, // text, fields
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses.",
		},
		[]string{"type"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Number of inference jobs waiting for a worker.",
		},
	)

	queueActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_active_jobs",
			Help:      "Number of inference jobs currently running.",
		},
	)

	queueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_rejected_total",
			Help:      "Total number of inference jobs rejected due to a full queue.",
		},
	)

	queueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_wait_duration_seconds",
			Help:      "Time spent waiting for an inference worker.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(fieldOutcomes)
	prometheus.MustRegister(modelLoadDuration)
	prometheus.MustRegister(ocrConfidence)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(queueActive)
	prometheus.MustRegister(queueRejectedTotal)
	prometheus.MustRegister(queueWaitDuration)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func RecordRequestDuration(endpoint, status string, seconds float64) {
	requestDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

func RecordFieldOutcome(field, outcome string) {
	fieldOutcomes.WithLabelValues(field, outcome).Inc()
}

func RecordModelLoad(model, result string, seconds float64) {
	modelLoadDuration.WithLabelValues(model, result).Observe(seconds)
}

func RecordOCRConfidence(c float64) { ocrConfidence.Observe(c) }

func RecordCacheHit(kind string) { cacheHits.WithLabelValues(kind).Inc() }
func RecordCacheMiss(kind string) { cacheMisses.WithLabelValues(kind).Inc() }

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }
func SetQueueActive(n int) { queueActive.Set(float64(n)) }

func RecordQueueRejection() { queueRejectedTotal.Inc() }
func RecordQueueWait(seconds float64) { queueWaitDuration.Observe(seconds) }
