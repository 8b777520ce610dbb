package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/fanout"
	"github.com/G-Research/batchproc/internal/queue"
)

func TestProcessJob_Outcomes(t *testing.T) {
	tests := map[string]struct {
		jobType        fanout.JobType
		payload        string
		expectedStatus queue.JobStatus
		expectedResult string
	}{
		"data job": {
			jobType:        fanout.DataProcessing,
			payload:        `{"a": "x"}`,
			expectedStatus: queue.JobFinished,
			expectedResult: `{"a": "Processed standard: x"}`,
		},
		"text job": {
			jobType:        fanout.TextProcessing,
			payload:        `"one two"`,
			expectedStatus: queue.JobFinished,
			expectedResult: `{"word_count": 2, "char_count": 7, "tokens": ["one", "two"], "unique_tokens": ["one", "two"]}`,
		},
		"invalid payload still finishes": {
			jobType:        fanout.DataProcessing,
			payload:        `"not a dict"`,
			expectedStatus: queue.JobFinished,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			withWorker(t, func(w *JobWorker, q *queue.RedisJobQueue) {
				job := &queue.Job{Id: "job-1", Type: tc.jobType, Payload: json.RawMessage(tc.payload), CreatedAt: time.Now()}
				_, err := q.Enqueue(job)
				require.NoError(t, err)

				require.NoError(t, w.ProcessJob(context.Background(), job))

				info, err := q.Fetch("job-1")
				require.NoError(t, err)
				assert.Equal(t, tc.expectedStatus, info.Status)

				var result map[string]json.RawMessage
				require.NoError(t, json.Unmarshal(info.Result, &result))
				if tc.expectedResult != "" {
					assert.Equal(t, `"success"`, string(result["status"]))
					assert.JSONEq(t, tc.expectedResult, string(result["results"]))
				} else {
					assert.Equal(t, `"error"`, string(result["status"]))
				}
			})
		})
	}
}

func TestRun_ProcessesQueuedJobs(t *testing.T) {
	withWorker(t, func(w *JobWorker, q *queue.RedisJobQueue) {
		for _, id := range []string{"a", "b"} {
			_, err := q.Enqueue(&queue.Job{Id: id, Type: fanout.DataProcessing, Payload: json.RawMessage(`{"k": 1}`), CreatedAt: time.Now()})
			require.NoError(t, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- w.Run(ctx) }()

		assert.Eventually(t, func() bool {
			list, err := q.List()
			return err == nil && len(list.Finished) == 2
		}, 5*time.Second, 20*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})
}

func TestWorkerId(t *testing.T) {
	assert.Equal(t, "configured", WorkerId("configured"))

	require.NoError(t, os.Setenv("WORKER_ID", "from-env"))
	assert.Equal(t, "from-env", WorkerId(""))
	require.NoError(t, os.Unsetenv("WORKER_ID"))

	assert.Regexp(t, `^worker-\d+$`, WorkerId(""))
}

func withWorker(t *testing.T, action func(w *JobWorker, q *queue.RedisJobQueue)) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.Addr()}})
	defer db.Close()

	q, err := queue.NewRedisJobQueue(db, queue.Config{Name: "test"})
	require.NoError(t, err)

	pool := fanout.NewGoroutinePool(fanout.StandardRegistry(fanout.SimulatedDelay{}), 2)
	processor := batch.NewProcessor(fanout.NewOrchestrator(pool, 0), 0)
	action(NewJobWorker("test-worker", q, processor, 2, time.Second, time.Minute), q)
}
