package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/common/logging"
	"github.com/G-Research/batchproc/internal/metrics"
	"github.com/G-Research/batchproc/internal/queue"
)

// JobWorker takes jobs off a queue and runs them through a batch.Processor.
type JobWorker struct {
	id          string
	queue       queue.JobQueue
	processor   *batch.Processor
	concurrency int
	pollTimeout time.Duration
	jobTimeout  time.Duration
}

func NewJobWorker(id string, q queue.JobQueue, processor *batch.Processor, concurrency int, pollTimeout, jobTimeout time.Duration) *JobWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &JobWorker{
		id:          id,
		queue:       q,
		processor:   processor,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
		jobTimeout:  jobTimeout,
	}
}

// Run processes jobs until ctx is cancelled. A job that is being processed when ctx is cancelled
// is allowed to finish.
func (w *JobWorker) Run(ctx context.Context) error {
	logger := log.WithFields(log.Fields{"workerId": w.id, "queue": w.queue.Name()})
	logger.Infof("Worker started with concurrency %d", w.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				job, err := w.queue.Dequeue(w.pollTimeout)
				if err != nil {
					logging.WithStacktrace(logger, err).Warn("Failed to dequeue job")
					time.Sleep(w.pollTimeout)
					continue
				}
				if job == nil {
					continue
				}
				if err := w.ProcessJob(context.Background(), job); err != nil {
					logging.WithStacktrace(logger.WithField("jobId", job.Id), err).Error("Failed to record job outcome")
				}
			}
			return nil
		})
	}
	err := g.Wait()
	logger.Info("Worker stopped")
	return err
}

// ProcessJob runs a single job and records its outcome on the queue. A job whose processing panics is
// marked failed; every other outcome, including a result with status "error", marks it finished.
func (w *JobWorker) ProcessJob(ctx context.Context, job *queue.Job) error {
	logger := log.WithFields(log.Fields{"workerId": w.id, "jobId": job.Id, "jobType": job.Type})
	if err := w.queue.Start(job.Id); err != nil {
		return err
	}
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := w.run(ctx, job)
	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		logging.WithStacktrace(logger, err).Error("Job failed")
		metrics.JobsCompleted.WithLabelValues(string(job.Type), string(queue.JobFailed)).Inc()
		return w.queue.Fail(job.Id, err.Error())
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		metrics.JobsCompleted.WithLabelValues(string(job.Type), string(queue.JobFailed)).Inc()
		return w.queue.Fail(job.Id, fmt.Sprintf("encoding result: %v", err))
	}
	logger.Infof("Job finished with status %s", result.Status)
	metrics.JobsCompleted.WithLabelValues(string(job.Type), string(queue.JobFinished)).Inc()
	return w.queue.Finish(job.Id, encoded)
}

func (w *JobWorker) run(ctx context.Context, job *queue.Job) (result *batch.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panicked: %v", r)
		}
	}()
	return w.processor.Process(ctx, job.Type, job.Payload, job.Options), nil
}
