package fanout

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
)

// fakePool records what it is asked to do and delegates dispatches to a GoroutinePool.
type fakePool struct {
	ready          bool
	readiness      Readiness
	dispatchErr    error
	ensureCalls    int
	dispatchCalls  int
	dispatchChunks int
	delegate       *GoroutinePool
}

func newFakePool(ready bool) *fakePool {
	return &fakePool{
		ready:     ready,
		readiness: Readiness{Ready: ready, Reason: "not started"},
		delegate:  NewGoroutinePool(StandardRegistry(SimulatedDelay{}), 4),
	}
}

func (f *fakePool) IsReady() bool { return f.ready }

func (f *fakePool) EnsureReady(_ context.Context) Readiness {
	f.ensureCalls++
	f.ready = f.readiness.Ready
	return f.readiness
}

func (f *fakePool) Dispatch(ctx context.Context, fn string, chunks []Chunk, args Args) ([]ChunkResult, error) {
	f.dispatchCalls++
	f.dispatchChunks += len(chunks)
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	return f.delegate.Dispatch(ctx, fn, chunks, args)
}

func TestRunDistributedTask_DataOnReadyPool(t *testing.T) {
	pool := newFakePool(true)
	o := NewOrchestrator(pool, 0)

	data := orderedMapOf(25)
	outcome := o.RunDistributedTask(context.Background(), DataProcessing, data, TaskOptions{BatchSize: 10})

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Local)
	assert.Equal(t, 0, pool.ensureCalls)
	assert.Equal(t, 1, pool.dispatchCalls)
	assert.Equal(t, 3, pool.dispatchChunks)
	assert.Equal(t, data.Keys(), outcome.Data.Keys())
	v, _ := outcome.Data.Get("k0")
	assert.Equal(t, "Processed standard: 0", v)
}

func TestRunDistributedTask_FallsBackWhenPoolUnready(t *testing.T) {
	pool := newFakePool(false)
	o := NewOrchestrator(pool, 0)

	data := NewOrderedMap()
	data.Set("a", "x")
	data.Set("b", "y")
	outcome := o.RunDistributedTask(context.Background(), DataProcessing, data, TaskOptions{BatchSize: 1})

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Local)
	assert.Equal(t, 1, pool.ensureCalls)
	assert.Equal(t, 0, pool.dispatchCalls)

	out, err := json.Marshal(outcome)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"Locally processed: x","b":"Locally processed: y"}`, string(out))
}

func TestRunDistributedTask_InitialisesPoolOnce(t *testing.T) {
	pool := newFakePool(false)
	pool.readiness = Ready()
	o := NewOrchestrator(pool, 0)

	for i := 0; i < 3; i++ {
		outcome := o.RunDistributedTask(context.Background(), TextProcessing, "a b c", TaskOptions{})
		require.NoError(t, outcome.Err)
	}
	assert.Equal(t, 1, pool.ensureCalls)
	assert.Equal(t, 3, pool.dispatchCalls)
}

func TestRunDistributedTask_FallsBackOnStructuralDispatchFailure(t *testing.T) {
	pool := newFakePool(true)
	pool.dispatchErr = errors.WithStack(&batcherrors.ErrPoolUnavailable{Reason: "push failed"})
	o := NewOrchestrator(pool, 0)

	outcome := o.RunDistributedTask(context.Background(), TextProcessing, "one two three", TaskOptions{Operations: []string{"count", "tokenize"}})
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Local)
	assert.Equal(t, 3, outcome.Text.WordCount)
	assert.Equal(t, []string{"one", "two", "three"}, outcome.Text.Tokens)
	assert.Nil(t, outcome.Text.UniqueTokens)
}

func TestRunDistributedTask_ChunkFailureBecomesErrorOutcome(t *testing.T) {
	pool := newFakePool(true)
	pool.dispatchErr = &batcherrors.ErrChunkExecution{Index: 4, Err: errors.New("bad input")}
	o := NewOrchestrator(pool, 0)

	outcome := o.RunDistributedTask(context.Background(), DataProcessing, orderedMapOf(50), TaskOptions{})
	require.Error(t, outcome.Err)

	out, err := json.Marshal(outcome)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "chunk 4 failed: bad input"}`, string(out))
}

func TestRunDistributedTask_RecoversPanics(t *testing.T) {
	o := NewOrchestrator(&panickingPool{}, 0)

	outcome := o.RunDistributedTask(context.Background(), TextProcessing, "text", TaskOptions{})
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "panic")
}

func TestRunDistributedTask_Validation(t *testing.T) {
	tests := map[string]struct {
		jobType JobType
		payload interface{}
		message string
	}{
		"unsupported type":  {jobType: "video", payload: "x", message: "Unsupported job_type: video"},
		"data not a map":    {jobType: DataProcessing, payload: "x", message: "data must be a mapping"},
		"nil data":          {jobType: DataProcessing, payload: (*OrderedMap)(nil), message: "data must be a mapping"},
		"text not a string": {jobType: TextProcessing, payload: 42, message: "text must be a string"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			pool := newFakePool(true)
			outcome := NewOrchestrator(pool, 0).RunDistributedTask(context.Background(), tc.jobType, tc.payload, TaskOptions{})
			require.Error(t, outcome.Err)
			assert.Contains(t, outcome.Err.Error(), tc.message)
			assert.Equal(t, 0, pool.dispatchCalls)
		})
	}
}

func TestRunDistributedTask_TextDefaultsToCount(t *testing.T) {
	text := strings.Repeat("word ", 500)
	outcome := NewOrchestrator(newFakePool(true), 0).RunDistributedTask(context.Background(), TextProcessing, text, TaskOptions{})
	require.NoError(t, outcome.Err)

	out, err := json.Marshal(outcome)
	require.NoError(t, err)
	assert.JSONEq(t, `{"word_count": 500, "char_count": 2500}`, string(out))
}

type panickingPool struct{}

func (p *panickingPool) IsReady() bool                           { return true }
func (p *panickingPool) EnsureReady(_ context.Context) Readiness { return Ready() }
func (p *panickingPool) Dispatch(context.Context, string, []Chunk, Args) ([]ChunkResult, error) {
	panic("pool exploded")
}
