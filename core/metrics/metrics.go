package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. Labels use the outcome classes and stage names the
// pipeline reports; cardinality stays fixed.
var (
	// JobsTotal counts processed jobs by outcome class.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_jobs_total",
		Help: "Total number of processed jobs by outcome.",
	}, []string{"outcome"})

	// JobDuration measures end-to-end job duration.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iris_job_duration_seconds",
		Help:    "End-to-end duration of one job attempt in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// StageFailures counts per-stage pipeline failures.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_stage_failures_total",
		Help: "Total number of pipeline stage failures.",
	}, []string{"stage"})

	// Publishes counts broker publish attempts by status.
	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_publishes_total",
		Help: "Total number of broker publish attempts.",
	}, []string{"status"})

	// QueuePolls counts queue receive calls by result.
	QueuePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_queue_polls_total",
		Help: "Total number of queue receive calls.",
	}, []string{"result"})

	// Detections counts detections emitted by the inference engine.
	Detections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iris_detections_total",
		Help: "Total number of detections above the confidence threshold.",
	})
)

// JobDiscarded is the JobsTotal outcome label for messages dropped before
// processing, alongside the outcome class labels.
const JobDiscarded = "discarded"

// Publish status label values.
const (
	PublishOK     = "ok"
	PublishFailed = "failed"
)

// Queue poll result label values.
const (
	PollMessage = "message"
	PollEmpty   = "empty"
	PollError   = "error"
)
