package fanout

import (
	"context"

	"github.com/go-redis/redis"
)

// Readiness is the explicit result of a readiness probe.
type Readiness struct {
	Ready  bool
	Reason string
}

func Ready() Readiness {
	return Readiness{Ready: true}
}

func Unready(reason string) Readiness {
	return Readiness{Reason: reason}
}

// Pool runs chunk functions, possibly on other machines.
type Pool interface {
	// IsReady reports the result of the last readiness probe without doing any I/O.
	IsReady() bool
	// EnsureReady probes the pool, initialising it if needed. It is idempotent.
	EnsureReady(ctx context.Context) Readiness
	// Dispatch runs the named function over every chunk and returns one result per chunk, in the order of chunks.
	// It blocks until all chunks are done. The first failing chunk aborts the dispatch with an
	// *batcherrors.ErrChunkExecution; failures to hand work to the pool at all are reported as
	// *batcherrors.ErrPoolUnavailable.
	Dispatch(ctx context.Context, fn string, chunks []Chunk, args Args) ([]ChunkResult, error)
}

// NewPool builds the pool selected by config. db is only used by the redis backend and may be nil otherwise.
func NewPool(config Config, registry *Registry, db redis.UniversalClient) Pool {
	if config.Backend == RedisBackend {
		return NewRedisPool(db, config.PollInterval)
	}
	return NewGoroutinePool(registry, config.MaxWorkers)
}
