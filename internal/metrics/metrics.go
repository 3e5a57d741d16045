package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqmon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingest metrics
	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_ingest_requests_total",
			Help: "Total number of request descriptors received",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	IngestValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_ingest_validation_errors_total",
			Help: "Total number of request descriptor validation errors",
		},
		[]string{"error_type"},
	)

	// Pipeline metrics
	PipelineQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqmon_pipeline_queue_size",
			Help: "Current number of requests waiting for evaluation",
		},
	)

	PipelineQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqmon_pipeline_queue_capacity",
			Help: "Capacity of the evaluation queue",
		},
	)

	PipelineDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_pipeline_dropped_total",
			Help: "Total number of accepted requests dropped because the queue was full",
		},
	)

	PipelineEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqmon_pipeline_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one request against the profile",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_worker_processed_total",
			Help: "Total number of requests evaluated by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_worker_failed_total",
			Help: "Total number of requests whose evaluation failed in workers",
		},
	)

	// Rule metrics
	RulesBuildErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_rules_build_errors_total",
			Help: "Total number of profile rule records that could not be constructed",
		},
	)

	RulesEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_rules_evaluated_total",
			Help: "Total number of rule evaluations",
		},
		[]string{"type", "result"}, // result: match, no_match, error
	)

	RulesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_rules_skipped_total",
			Help: "Total number of rules skipped during evaluation",
		},
		[]string{"reason"}, // reason: no_handler, handler_error
	)

	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"type", "severity"},
	)

	// Profile metrics
	ProfileReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_profile_reloads_total",
			Help: "Total number of profile loads",
		},
		[]string{"status"}, // status: loaded, missing, failed
	)

	ProfileRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqmon_profile_rules",
			Help: "Number of rule records in the current profile",
		},
	)

	// Sink metrics
	SinkAppendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_sink_append_total",
			Help: "Total number of alert record appends per sink",
		},
		[]string{"sink", "status"}, // status: success, failed
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqmon_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqmon_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqmon_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
