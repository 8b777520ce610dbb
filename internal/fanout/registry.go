package fanout

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ChunkFunc processes a single chunk. It must not retain chunk or args after returning.
type ChunkFunc func(ctx context.Context, chunk Chunk, args Args) (ChunkResult, error)

// Registry maps function names to chunk functions. Dispatchers ship only the name, so every
// process taking part in a pool must register the same functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]ChunkFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]ChunkFunc{}}
}

func (r *Registry) Register(name string, fn ChunkFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Lookup(name string) (ChunkFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := maps.Keys(r.funcs)
	slices.Sort(names)
	return names
}

// call runs fn, converting a panic into an error.
func call(ctx context.Context, fn ChunkFunc, chunk Chunk, args Args) (result ChunkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	result, err = fn(ctx, chunk, args)
	result.Index = chunk.Index
	return result, err
}
