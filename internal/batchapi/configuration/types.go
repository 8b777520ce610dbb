package configuration

import (
	"time"

	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/queue"
)

type BatchApiConfiguration struct {
	HttpPort    uint16 `validate:"required"`
	MetricsPort uint16
	// Number of finished job results kept in memory
	ResultCacheSize int `validate:"gte=1"`
	// How often the queue size gauge is refreshed
	QueueMetricsInterval time.Duration `validate:"required"`

	Redis config.RedisConfig
	Queue queue.Config
}
