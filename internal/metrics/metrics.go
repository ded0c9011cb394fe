package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the appraisal pipeline
var (
	AppraisalsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appraisals_submitted_total",
			Help: "Total number of appraisal requests accepted",
		},
	)

	AppraisalsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appraisals_rejected_total",
			Help: "Total number of appraisal requests rejected by validation",
		},
	)

	AppraisalResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_results_total",
			Help: "Processor invocations by outcome (created, duplicate, invalid, error)",
		},
		[]string{"outcome"},
	)

	AppraisalProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appraisal_processing_duration_seconds",
			Help:    "Duration of a single processor invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	AppraisalsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appraisals_failed_total",
			Help: "Total number of requests marked failed after exhausting worker attempts",
		},
	)

	TriggerRedeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trigger_redeliveries_total",
			Help: "Total number of trigger queue entries left pending for redelivery",
		},
	)

	TriggerClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trigger_claimed_total",
			Help: "Total number of idle trigger queue entries taken over from another consumer",
		},
	)

	ResultCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appraisal_result_cache_hits_total",
			Help: "Total number of result reads served from Redis",
		},
	)

	ResultStreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appraisal_result_stream_subscribers",
			Help: "Number of open SSE result streams",
		},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AppraisalsSubmittedTotal)
		prometheus.MustRegister(AppraisalsRejectedTotal)
		prometheus.MustRegister(AppraisalResultsTotal)
		prometheus.MustRegister(AppraisalProcessingDuration)
		prometheus.MustRegister(AppraisalsFailedTotal)
		prometheus.MustRegister(TriggerRedeliveriesTotal)
		prometheus.MustRegister(TriggerClaimedTotal)
		prometheus.MustRegister(ResultCacheHitsTotal)
		prometheus.MustRegister(ResultStreamSubscribers)
	})
}
