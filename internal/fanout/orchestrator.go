package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/common/logging"
	"github.com/G-Research/batchproc/internal/metrics"
)

// Orchestrator partitions a job, fans the chunks out over a Pool and merges the results.
// When the pool is unavailable the job is processed in process instead.
type Orchestrator struct {
	pool            Pool
	dispatchTimeout time.Duration
}

func NewOrchestrator(pool Pool, dispatchTimeout time.Duration) *Orchestrator {
	return &Orchestrator{pool: pool, dispatchTimeout: dispatchTimeout}
}

// RunDistributedTask never returns an error: every failure, including panics, is captured in the Outcome.
// payload must be an *OrderedMap for DataProcessing and a string for TextProcessing.
func (o *Orchestrator) RunDistributedTask(ctx context.Context, jobType JobType, payload interface{}, options TaskOptions) (outcome Outcome) {
	start := time.Now()
	logger := log.WithField("jobType", jobType)
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Err: errors.Errorf("panic during distributed task: %v", r)}
		}
		label := "success"
		if outcome.Err != nil {
			label = "error"
			logging.WithStacktrace(logger, outcome.Err).Warn("Distributed task failed")
		} else if outcome.Local {
			label = "local"
		}
		metrics.DispatchDuration.WithLabelValues(string(jobType), label).Observe(time.Since(start).Seconds())
		logger.Infof("Distributed task finished in %s (%s)", time.Since(start), label)
	}()

	if !jobType.Valid() {
		return Outcome{Err: &batcherrors.ErrUnsupportedJobType{JobType: string(jobType)}}
	}
	if err := validatePayload(jobType, payload); err != nil {
		return Outcome{Err: err}
	}
	options = withDefaults(jobType, options)

	if !o.pool.IsReady() {
		if readiness := o.pool.EnsureReady(ctx); !readiness.Ready {
			logger.Warnf("Executor pool unavailable (%s), processing locally", readiness.Reason)
			return o.runLocally(jobType, payload, options)
		}
	}

	outcome, err := o.runOnPool(ctx, logger, jobType, payload, options)
	if batcherrors.IsPoolUnavailable(err) {
		logger.Warnf("Dispatch failed (%v), processing locally", err)
		return o.runLocally(jobType, payload, options)
	} else if err != nil {
		return Outcome{Err: err}
	}
	return outcome
}

func (o *Orchestrator) runOnPool(ctx context.Context, logger *log.Entry, jobType JobType, payload interface{}, options TaskOptions) (Outcome, error) {
	if o.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.dispatchTimeout)
		defer cancel()
	}

	switch jobType {
	case DataProcessing:
		chunks := PartitionData(payload.(*OrderedMap), options.BatchSize)
		logger.Infof("Processing %d data chunks", len(chunks))
		metrics.DispatchChunks.WithLabelValues(string(jobType)).Observe(float64(len(chunks)))
		results, err := o.pool.Dispatch(ctx, DataChunkFunc, chunks, Args{"operation": options.Operation})
		if err != nil {
			return Outcome{}, err
		}
		merged, err := MergeData(results)
		return Outcome{Data: merged}, err
	default:
		chunks := PartitionText(payload.(string), options.ChunkSize)
		logger.Infof("Processing %d text chunks", len(chunks))
		metrics.DispatchChunks.WithLabelValues(string(jobType)).Observe(float64(len(chunks)))
		results, err := o.pool.Dispatch(ctx, TextChunkFunc, chunks, Args{"operations": options.Operations})
		if err != nil {
			return Outcome{}, err
		}
		merged, err := MergeText(results, options.Operations)
		return Outcome{Text: merged}, err
	}
}

func (o *Orchestrator) runLocally(jobType JobType, payload interface{}, options TaskOptions) Outcome {
	metrics.LocalFallbacks.WithLabelValues(string(jobType)).Inc()
	if jobType == DataProcessing {
		return Outcome{Data: processDataLocally(payload.(*OrderedMap)), Local: true}
	}
	return Outcome{Text: processTextLocally(payload.(string), options.Operations), Local: true}
}

func validatePayload(jobType JobType, payload interface{}) error {
	switch jobType {
	case DataProcessing:
		if m, ok := payload.(*OrderedMap); !ok || m == nil {
			return &batcherrors.ErrInvalidArgument{Name: "data", Value: fmt.Sprintf("%T", payload), Message: "data must be a mapping"}
		}
	case TextProcessing:
		if _, ok := payload.(string); !ok {
			return &batcherrors.ErrInvalidArgument{Name: "data", Value: fmt.Sprintf("%T", payload), Message: "text must be a string"}
		}
	}
	return nil
}

func withDefaults(jobType JobType, options TaskOptions) TaskOptions {
	if options.BatchSize == 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.ChunkSize == 0 {
		options.ChunkSize = DefaultChunkSize
	}
	if jobType == TextProcessing {
		options.Operations = normaliseOperations(options.Operations)
		if len(options.Operations) == 0 {
			options.Operations = []string{OperationCount}
		}
	}
	return options
}
