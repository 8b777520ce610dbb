package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "batchproc_"

var JobsEnqueued = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "jobs_enqueued_total",
		Help: "Number of jobs accepted by the batch API",
	},
	[]string{"jobType"},
)

var JobsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "jobs_completed_total",
		Help: "Number of jobs processed by workers, by final queue status",
	},
	[]string{"jobType", "status"},
)

var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "job_duration_seconds",
		Help:    "Time taken by a worker to process a job",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
	[]string{"jobType"},
)

var DispatchChunks = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "dispatch_chunks",
		Help:    "Number of chunks fanned out per distributed task",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	},
	[]string{"jobType"},
)

var DispatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "dispatch_duration_seconds",
		Help:    "Time from partitioning to merged result for distributed tasks",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
	[]string{"jobType", "outcome"},
)

var LocalFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "local_fallbacks_total",
		Help: "Number of distributed tasks run locally because the executor pool was unavailable",
	},
	[]string{"jobType"},
)

var ChunksExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "chunks_executed_total",
		Help: "Number of chunks run by this chunk executor",
	},
	[]string{"function", "outcome"},
)

var QueueSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "queue_size",
		Help: "Number of jobs waiting in a queue",
	},
	[]string{"queueName"},
)

var EventsIngested = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricPrefix + "events_ingested_total",
		Help: "Number of events persisted by the ingestion service",
	},
)
