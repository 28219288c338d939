package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inference call latency (seconds)
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applytrail_inference_latency_seconds",
			Help:    "Inference backend call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"backend", "operation", "status"},
	)

	// Items processed by outcome
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrail_items_processed_total",
			Help: "Total number of inbox items attempted, by outcome",
		},
		[]string{"outcome"},
	)

	// Runs by result
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrail_runs_total",
			Help: "Total number of pipeline runs, by result",
		},
		[]string{"result"}, // completed, cancelled, failed
	)

	// Records inserted into the record store
	RecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applytrail_records_inserted_total",
			Help: "Total number of application records inserted",
		},
	)

	// Message detail fetches by status
	DetailFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrail_detail_fetches_total",
			Help: "Total number of message detail fetches, by status",
		},
		[]string{"status"}, // ok, cached, failed
	)

	// Message cache lookups by layer and result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrail_message_cache_lookups_total",
			Help: "Total number of message cache lookups, by layer and result",
		},
		[]string{"layer", "result"},
	)
)

// RecordInferenceLatency records one inference call
func RecordInferenceLatency(backend, operation, status string, duration time.Duration) {
	InferenceLatency.WithLabelValues(backend, operation, status).Observe(duration.Seconds())
}

// IncrementItemProcessed counts one attempted item
func IncrementItemProcessed(outcome string) {
	ItemsProcessed.WithLabelValues(outcome).Inc()
}

// IncrementRun counts one finished run
func IncrementRun(result string) {
	Runs.WithLabelValues(result).Inc()
}

// AddRecordsInserted counts newly inserted records
func AddRecordsInserted(n int) {
	if n > 0 {
		RecordsInserted.Add(float64(n))
	}
}

// IncrementDetailFetch counts one message detail fetch
func IncrementDetailFetch(status string) {
	DetailFetches.WithLabelValues(status).Inc()
}

// IncrementCacheLookup counts one message cache lookup
func IncrementCacheLookup(layer, result string) {
	CacheLookups.WithLabelValues(layer, result).Inc()
}
