package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/fanout"
	"github.com/G-Research/batchproc/internal/queue"
	"github.com/G-Research/batchproc/internal/worker/configuration"
)

// WorkerId returns the configured id, falling back to the WORKER_ID environment variable and then worker-<pid>.
func WorkerId(configured string) string {
	if configured != "" {
		return configured
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return fmt.Sprintf("worker-%d", os.Getpid())
}

// Run consumes the job queue until ctx is cancelled.
func Run(ctx context.Context, cfg *configuration.WorkerConfiguration) error {
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid worker configuration")
	}
	db := cfg.Redis.NewClient()
	defer util.CloseResource("redis", db)

	shutdownMetrics := common.ServeMetricsAndHealth(cfg.MetricsPort, health.NewRedisChecker(db))
	defer shutdownMetrics()

	jobQueue, err := queue.NewRedisJobQueue(db, cfg.Queue)
	if err != nil {
		return err
	}

	registry := fanout.StandardRegistry(cfg.Fanout.SimulatedDelay)
	pool := fanout.NewPool(cfg.Fanout, registry, db)
	if readiness := pool.EnsureReady(ctx); !readiness.Ready {
		log.Warnf("Executor pool not ready at startup (%s); jobs will be processed locally until it is", readiness.Reason)
	}
	orchestrator := fanout.NewOrchestrator(pool, cfg.Fanout.DispatchTimeout)
	processor := batch.NewProcessor(orchestrator, cfg.SequentialItemDelay)

	w := NewJobWorker(WorkerId(cfg.WorkerId), jobQueue, processor, cfg.Concurrency, cfg.PollTimeout, cfg.JobTimeout)
	return w.Run(ctx)
}

// RunChunkExecutor serves the redis executor pool until ctx is cancelled.
func RunChunkExecutor(ctx context.Context, cfg *configuration.WorkerConfiguration) error {
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid worker configuration")
	}
	db := cfg.Redis.NewClient()
	defer util.CloseResource("redis", db)

	shutdownMetrics := common.ServeMetricsAndHealth(cfg.MetricsPort, health.NewRedisChecker(db))
	defer shutdownMetrics()

	registry := fanout.StandardRegistry(cfg.Fanout.SimulatedDelay)
	executor := fanout.NewChunkExecutor(db, registry, cfg.Fanout.Executor, cfg.Fanout.PollInterval)
	return executor.Run(ctx)
}
