package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_events_enqueued_total",
			Help: "Total number of events accepted by the correlation pipeline",
		},
		[]string{"source_type"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"severity"},
	)

	AlertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_alerts_deduplicated_total",
			Help: "Total number of alerts suppressed by the dedup cache",
		},
	)

	BatchesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_batches_processed_total",
			Help: "Total number of event batches flushed to the evaluator",
		},
	)

	BatchProcessingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_batch_processing_failures_total",
			Help: "Total number of batches that failed processing",
		},
	)

	BatchEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_batch_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a batch against the rule snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_pipeline_queue_depth",
			Help: "Current number of events waiting in the pipeline queue",
		},
	)

	RuleEvaluationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_rule_evaluation_failures_total",
			Help: "Total number of per-rule evaluation failures isolated by the pipeline",
		},
		[]string{"rule_id"},
	)

	AggregationStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_aggregation_store_errors_total",
			Help: "Total number of distributed aggregation store errors",
		},
		[]string{"operation"},
	)

	RegexEvaluationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_regex_evaluation_failures_total",
			Help: "Total number of condition regex patterns that failed to compile or timed out",
		},
	)

	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_published_total",
			Help: "Total number of alerts handed to the publisher",
		},
		[]string{"outcome"},
	)

	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_lifecycle_transitions_total",
			Help: "Total number of alert lifecycle transitions",
		},
		[]string{"from", "to", "outcome"},
	)

	SnapshotReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_rule_snapshot_reloads_total",
			Help: "Total number of rule snapshot swaps",
		},
	)
)
