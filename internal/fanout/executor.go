package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/batchproc/internal/common/logging"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/metrics"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultReplyTTL          = 10 * time.Minute
)

// ChunkExecutor serves a RedisPool: it pops chunk envelopes, runs the named function from its registry
// and pushes the reply onto the dispatch's reply list. While running it keeps a heartbeat key alive so
// dispatchers can tell that executors exist.
type ChunkExecutor struct {
	id                string
	db                redis.UniversalClient
	registry          *Registry
	concurrency       int
	heartbeatInterval time.Duration
	pollInterval      time.Duration
	replyTTL          time.Duration
}

func NewChunkExecutor(db redis.UniversalClient, registry *Registry, config ExecutorConfig, pollInterval time.Duration) *ChunkExecutor {
	e := &ChunkExecutor{
		id:                util.NewULID(),
		db:                db,
		registry:          registry,
		concurrency:       config.Concurrency,
		heartbeatInterval: config.HeartbeatInterval,
		pollInterval:      pollInterval,
		replyTTL:          config.ReplyTTL,
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	if e.heartbeatInterval <= 0 {
		e.heartbeatInterval = defaultHeartbeatInterval
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.replyTTL <= 0 {
		e.replyTTL = defaultReplyTTL
	}
	return e
}

func (e *ChunkExecutor) Id() string {
	return e.id
}

// Run serves chunks until ctx is cancelled. The heartbeat is written before Run starts popping chunks
// and removed when it returns.
func (e *ChunkExecutor) Run(ctx context.Context) error {
	logger := log.WithField("executorId", e.id)
	if err := e.heartbeat(); err != nil {
		return errors.Wrap(err, "registering chunk executor")
	}
	defer func() {
		if err := e.db.Del(e.heartbeatKey()).Err(); err != nil {
			logger.Warnf("Failed to remove heartbeat: %v", err)
		}
	}()
	logger.Infof("Chunk executor started with %d workers serving %v", e.concurrency, e.registry.Names())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(e.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := e.heartbeat(); err != nil {
					logging.WithStacktrace(logger, err).Warn("Failed to write heartbeat")
				}
			}
		}
	})
	for i := 0; i < e.concurrency; i++ {
		g.Go(func() error {
			e.serve(gctx, logger)
			return nil
		})
	}
	err := g.Wait()
	logger.Info("Chunk executor stopped")
	return err
}

func (e *ChunkExecutor) heartbeatKey() string {
	return executorKeyPrefix + e.id
}

func (e *ChunkExecutor) heartbeat() error {
	return e.db.Set(e.heartbeatKey(), time.Now().UTC().Format(time.RFC3339), 3*e.heartbeatInterval).Err()
}

func (e *ChunkExecutor) serve(ctx context.Context, logger *log.Entry) {
	for ctx.Err() == nil {
		popped, err := e.db.BLPop(e.pollInterval, chunkQueueKey).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WithStacktrace(logger, err).Warn("Failed to pop chunk")
			_ = util.SleepContext(ctx, e.pollInterval)
			continue
		}
		if err := e.Execute(ctx, []byte(popped[1])); err != nil {
			logging.WithStacktrace(logger, err).Error("Failed to execute chunk")
		}
	}
}

// Execute runs a single chunk envelope and pushes its reply.
func (e *ChunkExecutor) Execute(ctx context.Context, payload []byte) error {
	var envelope chunkEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return errors.Wrap(err, "decoding chunk envelope")
	}

	aborted, err := e.db.Exists(abortedKeyPrefix + envelope.DispatchId).Result()
	if err != nil {
		return errors.WithStack(err)
	}
	if aborted > 0 {
		log.WithField("dispatchId", envelope.DispatchId).Debugf("Skipping chunk %d of aborted dispatch", envelope.Chunk.Index)
		return nil
	}

	reply := replyEnvelope{Index: envelope.Chunk.Index}
	fn, ok := e.registry.Lookup(envelope.Fn)
	if !ok {
		reply.Error = "function " + envelope.Fn + " is not registered"
	} else if result, err := call(ctx, fn, envelope.Chunk, envelope.Args); ctx.Err() != nil {
		// The executor is shutting down, so hand the chunk to another executor rather than fail the dispatch.
		return e.requeue(envelope, payload)
	} else if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = &result
	}

	outcome := "success"
	if reply.Error != "" {
		outcome = "failure"
	}
	metrics.ChunksExecuted.WithLabelValues(envelope.Fn, outcome).Inc()

	data, err := json.Marshal(reply)
	if err != nil {
		return errors.Wrap(err, "encoding reply")
	}
	replyKey := replyKeyPrefix + envelope.DispatchId
	pipe := e.db.TxPipeline()
	pipe.RPush(replyKey, data)
	pipe.Expire(replyKey, e.replyTTL)
	_, err = pipe.Exec()
	return errors.WithStack(err)
}

func (e *ChunkExecutor) requeue(envelope chunkEnvelope, payload []byte) error {
	log.WithFields(log.Fields{"executorId": e.id, "dispatchId": envelope.DispatchId}).
		Infof("Returning chunk %d to the queue on shutdown", envelope.Chunk.Index)
	return errors.Wrapf(e.db.LPush(chunkQueueKey, payload).Err(), "requeueing chunk %d", envelope.Chunk.Index)
}
