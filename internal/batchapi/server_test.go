package batchapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/queue"
)

func TestEnqueue_Validation(t *testing.T) {
	tests := map[string]struct {
		body    string
		status  int
		message string
	}{
		"empty body":       {body: "", status: http.StatusBadRequest, message: "No JSON data provided"},
		"invalid json":     {body: "{not json", status: http.StatusBadRequest, message: "No JSON data provided"},
		"null body":        {body: "null", status: http.StatusBadRequest, message: "No JSON data provided"},
		"missing job_type": {body: `{"data": {"a": 1}}`, status: http.StatusBadRequest, message: "job_type is required"},
		"missing data":     {body: `{"job_type": "data_processing"}`, status: http.StatusBadRequest, message: "data is required"},
		"null data":        {body: `{"job_type": "data_processing", "data": null}`, status: http.StatusBadRequest, message: "data is required"},
		"unsupported type": {body: `{"job_type": "video", "data": "x"}`, status: http.StatusBadRequest, message: "Unsupported job_type: video"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			withServer(t, func(s *Server, q *queue.RedisJobQueue) {
				rec := do(s, http.MethodPost, "/enqueue", tc.body)
				assert.Equal(t, tc.status, rec.Code)
				assert.Equal(t, map[string]interface{}{"error": tc.message}, decode(t, rec))

				size, err := q.Size()
				require.NoError(t, err)
				assert.Equal(t, int64(0), size)
			})
		})
	}
}

func TestEnqueue_AcceptsJobs(t *testing.T) {
	withServer(t, func(s *Server, q *queue.RedisJobQueue) {
		ids := []string{"id-1", "id-2"}
		s.newId = func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}

		rec := do(s, http.MethodPost, "/enqueue", `{"job_type": "data_processing", "data": {"key": "value"}}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, map[string]interface{}{"job_id": "id-1", "status": "queued", "position": float64(1)}, decode(t, rec))

		rec = do(s, http.MethodPost, "/enqueue", `{"job_type": "text_processing", "data": "some text", "options": {"operations": ["count"]}}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, float64(2), decode(t, rec)["position"])

		job, err := q.Dequeue(time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{"key": "value"}`, string(job.Payload))
	})
}

func TestGetJob(t *testing.T) {
	withServer(t, func(s *Server, q *queue.RedisJobQueue) {
		rec := do(s, http.MethodGet, "/job/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, map[string]interface{}{"error": "Job not found"}, decode(t, rec))

		s.newId = func() string { return "job-1" }
		do(s, http.MethodPost, "/enqueue", `{"job_type": "data_processing", "data": {"a": 1}}`)

		queued := decode(t, do(s, http.MethodGet, "/job/job-1", ""))
		assert.Equal(t, "queued", queued["status"])
		assert.Equal(t, float64(0), queued["queue_position"])
		assert.Nil(t, queued["ended_at"])
		assert.NotContains(t, queued, "result")

		_, err := q.Dequeue(time.Second)
		require.NoError(t, err)
		require.NoError(t, q.Start("job-1"))
		require.NoError(t, q.Finish("job-1", []byte(`{"status": "success"}`)))

		finished := decode(t, do(s, http.MethodGet, "/job/job-1", ""))
		assert.Equal(t, "finished", finished["status"])
		assert.Nil(t, finished["queue_position"])
		assert.NotNil(t, finished["ended_at"])
		assert.Equal(t, map[string]interface{}{"status": "success"}, finished["result"])

		// served from the cache once finished
		require.NoError(t, q.Empty())
		_, cached := s.results.Get("job-1")
		assert.True(t, cached)
	})
}

func TestListJobs(t *testing.T) {
	withServer(t, func(s *Server, q *queue.RedisJobQueue) {
		n := 0
		s.newId = func() string {
			n++
			return []string{"a", "b", "c"}[n-1]
		}
		for i := 0; i < 3; i++ {
			do(s, http.MethodPost, "/enqueue", `{"job_type": "text_processing", "data": "x"}`)
		}
		_, err := q.Dequeue(time.Second)
		require.NoError(t, err)
		require.NoError(t, q.Fail("a", "boom"))

		body := decode(t, do(s, http.MethodGet, "/jobs", ""))
		assert.Equal(t, float64(2), body["queued_count"])
		assert.Equal(t, float64(1), body["failed_count"])
		assert.Equal(t, []interface{}{"a"}, body["failed_jobs"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"id": "b", "status": "queued"},
			map[string]interface{}{"id": "c", "status": "queued"},
		}, body["queued_jobs"])
	})
}

func TestHealth(t *testing.T) {
	withServer(t, func(s *Server, _ *queue.RedisJobQueue) {
		rec := do(s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"status": "healthy"}, decode(t, rec))
	})
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func withServer(t *testing.T, action func(s *Server, q *queue.RedisJobQueue)) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer db.Close()

	q, err := queue.NewRedisJobQueue(db, queue.Config{Name: "test"})
	require.NoError(t, err)

	s, err := NewServer(q, health.NewRedisChecker(db), 10)
	require.NoError(t, err)
	action(s, q)
}
