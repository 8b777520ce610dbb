package ingestion

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostEvents_Errors(t *testing.T) {
	tests := map[string]struct {
		body    string
		status  int
		message string
	}{
		"invalid json":   {body: "{", status: http.StatusBadRequest, message: "Invalid JSON"},
		"empty list":     {body: "[]", status: http.StatusBadRequest, message: "Invalid JSON"},
		"missing fields": {body: `[{"event_type": "a", "timestamp": "1"}, {"event_type": "b"}]`, status: http.StatusBadRequest, message: "Missing fields in event"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			withServer(t, func(s *Server) {
				rec := do(s, http.MethodPost, "/events", tc.body)
				assert.Equal(t, tc.status, rec.Code)
				assert.Equal(t, map[string]interface{}{"error": tc.message}, decode(t, rec))

				// nothing from a rejected request is stored
				body := decode(t, do(s, http.MethodGet, "/events", ""))
				assert.Equal(t, []interface{}{}, body["events"])
			})
		})
	}
}

func TestPostAndGetEvents(t *testing.T) {
	withServer(t, func(s *Server) {
		rec := do(s, http.MethodPost, "/events", `{"event_type": "click", "timestamp": "2025-05-03T12:00:00Z", "metadata": {"x": 1}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"inserted": float64(1)}, decode(t, rec))

		rec = do(s, http.MethodPost, "/events", `[{"event_type": "a", "timestamp": "1"}, {"event_type": "b", "timestamp": "2"}]`)
		assert.Equal(t, map[string]interface{}{"inserted": float64(2)}, decode(t, rec))

		body := decode(t, do(s, http.MethodGet, "/events", ""))
		events := body["events"].([]interface{})
		require.Len(t, events, 3)
		assert.Equal(t, map[string]interface{}{
			"id":         float64(1),
			"event_type": "click",
			"timestamp":  "2025-05-03T12:00:00Z",
			"metadata":   map[string]interface{}{"x": float64(1)},
		}, events[0])

		body = decode(t, do(s, http.MethodGet, "/events?page=2&per_page=2", ""))
		events = body["events"].([]interface{})
		require.Len(t, events, 1)
		assert.Equal(t, "b", events[0].(map[string]interface{})["event_type"])

		body = decode(t, do(s, http.MethodGet, "/events?page=10", ""))
		assert.Equal(t, []interface{}{}, body["events"])

		rec = do(s, http.MethodGet, "/events?page=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthAndViews(t *testing.T) {
	withServer(t, func(s *Server) {
		rec := do(s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"status": "ok"}, decode(t, rec))

		do(s, http.MethodGet, "/views", "")
		rec = do(s, http.MethodGet, "/views", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "This page has been viewed 2 times.")
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

func withServer(t *testing.T, action func(s *Server)) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer db.Close()

	store, err := NewSQLiteEventStore(filepath.Join(t.TempDir(), "events.sqlite3"))
	require.NoError(t, err)
	defer store.Close()

	action(NewServer(store, db, store))
}
