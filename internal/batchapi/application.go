package batchapi

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/batchapi/configuration"
	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/common/task"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/metrics"
	"github.com/G-Research/batchproc/internal/queue"
)

// Serve runs the batch API until ctx is cancelled.
func Serve(ctx context.Context, cfg *configuration.BatchApiConfiguration) error {
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid batch api configuration")
	}

	startupComplete := health.NewStartupCompleteChecker()
	shutdownMetrics := common.ServeMetrics(cfg.MetricsPort)
	defer shutdownMetrics()

	db := cfg.Redis.NewClient()
	defer util.CloseResource("redis", db)

	jobQueue, err := queue.NewRedisJobQueue(db, cfg.Queue)
	if err != nil {
		return err
	}

	checker := health.NewMultiChecker(startupComplete, health.NewRedisChecker(db))
	server, err := NewServer(jobQueue, checker, cfg.ResultCacheSize)
	if err != nil {
		return err
	}

	taskManager := task.NewBackgroundTaskManager(metrics.MetricPrefix)
	taskManager.Register(func() { refreshQueueSize(jobQueue) }, cfg.QueueMetricsInterval, "queue_size_refresh")
	defer taskManager.StopAll(5 * time.Second)

	shutdownHttp := common.ServeHttp(cfg.HttpPort, server.Routes())
	defer shutdownHttp()

	startupComplete.MarkComplete()
	log.Infof("Batch API serving queue %s on port %d", jobQueue.Name(), cfg.HttpPort)
	<-ctx.Done()
	return nil
}

func refreshQueueSize(q queue.JobQueue) {
	size, err := q.Size()
	if err != nil {
		log.Warnf("Failed to read size of queue %s: %v", q.Name(), err)
		return
	}
	metrics.QueueSize.WithLabelValues(q.Name()).Set(float64(size))
}
