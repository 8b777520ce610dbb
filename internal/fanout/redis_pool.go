package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/common/util"
)

const (
	chunkQueueKey     = "Fanout:Chunks"
	replyKeyPrefix    = "Fanout:Reply:"
	abortedKeyPrefix  = "Fanout:Aborted:"
	executorKeyPrefix = "Fanout:Executor:"

	defaultPollInterval = time.Second
	abortedMarkerTTL    = time.Hour
	// A successful probe is trusted for as long as the heartbeat keys it saw can live.
	defaultReadinessTTL = 3 * defaultHeartbeatInterval
)

type chunkEnvelope struct {
	DispatchId string `json:"dispatch_id"`
	Fn         string `json:"fn"`
	Chunk      Chunk  `json:"chunk"`
	Args       Args   `json:"args,omitempty"`
}

type replyEnvelope struct {
	Index  int          `json:"index"`
	Result *ChunkResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// RedisPool fans chunks out to ChunkExecutors through Redis lists. Every dispatch has its own reply list,
// so concurrent dispatches never see each other's results.
type RedisPool struct {
	db           redis.UniversalClient
	pollInterval time.Duration
	readinessTTL time.Duration

	mu       sync.Mutex
	ready    bool
	probedAt time.Time
}

func NewRedisPool(db redis.UniversalClient, pollInterval time.Duration) *RedisPool {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &RedisPool{db: db, pollInterval: pollInterval, readinessTTL: defaultReadinessTTL}
}

// IsReady is false once the last successful probe is older than the readiness TTL, so that executors
// disappearing are noticed by the next EnsureReady.
func (p *RedisPool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready && time.Since(p.probedAt) < p.readinessTTL
}

// EnsureReady checks that Redis answers and that at least one chunk executor has a live heartbeat.
func (p *RedisPool) EnsureReady(_ context.Context) Readiness {
	readiness := p.probe()
	p.setReady(readiness.Ready)
	if !readiness.Ready {
		log.Warnf("Redis executor pool is not ready: %s", readiness.Reason)
	}
	return readiness
}

func (p *RedisPool) probe() Readiness {
	if _, err := p.db.Ping().Result(); err != nil {
		return Unready("redis unreachable: " + err.Error())
	}
	executors, err := p.db.Keys(executorKeyPrefix + "*").Result()
	if err != nil {
		return Unready("listing chunk executors: " + err.Error())
	}
	if len(executors) == 0 {
		return Unready("no chunk executors registered")
	}
	return Ready()
}

func (p *RedisPool) setReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = ready
	p.probedAt = time.Now()
}

func (p *RedisPool) Dispatch(ctx context.Context, fn string, chunks []Chunk, args Args) ([]ChunkResult, error) {
	if len(chunks) == 0 {
		return []ChunkResult{}, nil
	}

	dispatchId := util.NewULID()
	replyKey := replyKeyPrefix + dispatchId
	positions := make(map[int]int, len(chunks))

	envelopes := make([]interface{}, 0, len(chunks))
	for i, chunk := range chunks {
		positions[chunk.Index] = i
		envelope, err := json.Marshal(chunkEnvelope{DispatchId: dispatchId, Fn: fn, Chunk: chunk, Args: args})
		if err != nil {
			return nil, errors.Wrapf(err, "encoding chunk %d", chunk.Index)
		}
		envelopes = append(envelopes, envelope)
	}

	if err := p.db.RPush(chunkQueueKey, envelopes...).Err(); err != nil {
		p.setReady(false)
		return nil, errors.WithStack(&batcherrors.ErrPoolUnavailable{Reason: "pushing chunks: " + err.Error()})
	}
	log.WithField("dispatchId", dispatchId).Debugf("Dispatched %d chunks of %s", len(chunks), fn)

	results, err := p.collect(ctx, dispatchId, replyKey, positions)
	if err != nil {
		p.abort(dispatchId, replyKey)
		return nil, err
	}
	p.db.Del(replyKey)
	return results, nil
}

// collect waits until one reply per chunk has arrived, placing each at the position of its chunk.
func (p *RedisPool) collect(ctx context.Context, dispatchId, replyKey string, positions map[int]int) ([]ChunkResult, error) {
	results := make([]ChunkResult, len(positions))
	received := make([]bool, len(positions))
	for remaining := len(positions); remaining > 0; {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "dispatch %s waiting for %d chunks", dispatchId, remaining)
		}

		reply, err := p.db.BLPop(p.pollInterval, replyKey).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "dispatch %s reading replies", dispatchId)
		}

		var r replyEnvelope
		if err := json.Unmarshal([]byte(reply[1]), &r); err != nil {
			return nil, errors.Wrapf(err, "dispatch %s decoding reply", dispatchId)
		}
		if r.Error != "" {
			return nil, &batcherrors.ErrChunkExecution{Index: r.Index, Err: errors.New(r.Error)}
		}
		pos, ok := positions[r.Index]
		if !ok || received[pos] || r.Result == nil {
			log.WithField("dispatchId", dispatchId).Warnf("Ignoring unexpected reply for chunk %d", r.Index)
			continue
		}
		results[pos] = *r.Result
		received[pos] = true
		remaining--
	}
	return results, nil
}

// abort marks the dispatch so executors skip its remaining chunks, and drops replies already received.
func (p *RedisPool) abort(dispatchId, replyKey string) {
	pipe := p.db.TxPipeline()
	pipe.Set(abortedKeyPrefix+dispatchId, 1, abortedMarkerTTL)
	pipe.Del(replyKey)
	if _, err := pipe.Exec(); err != nil {
		log.WithField("dispatchId", dispatchId).Warnf("Failed to mark dispatch as aborted: %v", err)
	}
}
