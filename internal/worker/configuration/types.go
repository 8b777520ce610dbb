package configuration

import (
	"time"

	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/fanout"
	"github.com/G-Research/batchproc/internal/queue"
)

type WorkerConfiguration struct {
	MetricsPort uint16
	// Identifies this worker in logs. Defaults to worker-<pid>.
	WorkerId string
	// Number of jobs processed at the same time
	Concurrency int `validate:"gte=1"`
	// How long a single dequeue blocks before the shutdown signal is checked again
	PollTimeout time.Duration
	// Upper bound on the processing time of a single job. Zero means unbounded.
	JobTimeout time.Duration
	// Simulated cost of each item on the sequential data path
	SequentialItemDelay time.Duration

	Redis  config.RedisConfig
	Queue  queue.Config
	Fanout fanout.Config
}
