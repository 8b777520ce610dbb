package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/fanout"
)

func newTestRunner() *Runner {
	pool := fanout.NewGoroutinePool(fanout.StandardRegistry(fanout.SimulatedDelay{}), 2)
	processor := batch.NewProcessor(fanout.NewOrchestrator(pool, 0), 0)
	return NewRunner(processor, NewFetcher(time.Second, time.Hour), NewSink(), RetryConfig{Attempts: 2})
}

func resultsJson(t *testing.T, result *batch.Result) string {
	content, err := json.Marshal(result.Results)
	require.NoError(t, err)
	return string(content)
}

func TestDataFlow_InlineData(t *testing.T) {
	data := fanout.NewOrderedMap()
	data.Set("Greeting", "HELLO")
	data.Set("secret", "x")

	result, err := newTestRunner().DataFlow(context.Background(), &FlowSpec{
		Data: data,
		Options: map[string]interface{}{
			"distributed":       false,
			"skip_keys":         []interface{}{"secret"},
			"lowercase_strings": true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, batch.StatusSuccess, result.Status)
	assert.Equal(t, `{"Greeting":"Processed: hello"}`, resultsJson(t, result))
}

func TestDataFlow_FetchesSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"b": 2, "a": 1}`))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "results.json")
	result, err := newTestRunner().DataFlow(context.Background(), &FlowSpec{
		SourceUrl:   server.URL,
		Options:     map[string]interface{}{"distributed": false, "auth_token": "token"},
		Destination: "file://" + filepath.ToSlash(destination),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"b":"Processed: 2","a":"Processed: 1"}`, resultsJson(t, result))

	saved, err := os.ReadFile(destination)
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(saved, &stored))
	assert.Equal(t, "success", stored["status"])
}

func TestDataFlow_NoInput(t *testing.T) {
	tests := map[string]*FlowSpec{
		"nothing":    {},
		"empty data": {Data: fanout.NewOrderedMap()},
	}
	for name, spec := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newTestRunner().DataFlow(context.Background(), spec)
			assert.Equal(t, ErrNoData, err)
		})
	}
}

func TestTextFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text": "one two three"}`))
	}))
	defer server.Close()

	result, err := newTestRunner().TextFlow(context.Background(), &FlowSpec{
		SourceUrl: server.URL,
		Options:   map[string]interface{}{"operations": []interface{}{"count"}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.TextLength)
	assert.Equal(t, 13, *result.TextLength)
	assert.JSONEq(t, `{"word_count": 3, "char_count": 13}`, resultsJson(t, result))
}

func TestTextFlow_NoInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"other": "field"}`))
	}))
	defer server.Close()

	_, err := newTestRunner().TextFlow(context.Background(), &FlowSpec{})
	assert.Equal(t, ErrNoText, err)

	_, err = newTestRunner().TextFlow(context.Background(), &FlowSpec{SourceUrl: server.URL})
	assert.Equal(t, ErrNoText, err)
}

func TestDataFlow_ProcessingErrorIsReturned(t *testing.T) {
	data := fanout.NewOrderedMap()
	data.Set("a", 1)

	_, err := newTestRunner().DataFlow(context.Background(), &FlowSpec{
		Data:    data,
		Options: map[string]interface{}{"batch_size": -1},
	})
	assert.Error(t, err)
}
