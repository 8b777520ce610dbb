package fanout

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
)

// GoroutinePool runs chunks in process, at most maxWorkers at a time.
type GoroutinePool struct {
	registry   *Registry
	maxWorkers int

	mu    sync.Mutex
	ready bool
}

// NewGoroutinePool creates a pool over registry. A non-positive maxWorkers means one worker per CPU.
func NewGoroutinePool(registry *Registry, maxWorkers int) *GoroutinePool {
	if maxWorkers < 1 {
		maxWorkers = runtime.NumCPU()
	}
	return &GoroutinePool{registry: registry, maxWorkers: maxWorkers}
}

func (p *GoroutinePool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *GoroutinePool) EnsureReady(_ context.Context) Readiness {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registry == nil {
		return Unready("no function registry configured")
	}
	p.ready = true
	return Ready()
}

func (p *GoroutinePool) Dispatch(ctx context.Context, fnName string, chunks []Chunk, args Args) ([]ChunkResult, error) {
	if p.registry == nil {
		return nil, &batcherrors.ErrPoolUnavailable{Reason: "no function registry configured"}
	}
	fn, ok := p.registry.Lookup(fnName)
	if !ok {
		return nil, &batcherrors.ErrPoolUnavailable{Reason: "function " + fnName + " is not registered"}
	}

	results := make([]ChunkResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := call(gctx, fn, chunk, args)
			if err != nil {
				return &batcherrors.ErrChunkExecution{Index: chunk.Index, Err: err}
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}
	return results, nil
}
