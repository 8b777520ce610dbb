package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_SendsTokenAndCaches(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"a": 1}`))
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, time.Hour)
	for i := 0; i < 2; i++ {
		body, err := fetcher.Fetch(context.Background(), server.URL, "secret")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1}`, string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetcher_CacheKeyIncludesToken(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second, time.Hour)
	_, err := fetcher.Fetch(context.Background(), server.URL, "one")
	require.NoError(t, err)
	_, err = fetcher.Fetch(context.Background(), server.URL, "two")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetcher_Errors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"error status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"invalid json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := NewFetcher(time.Second, time.Hour).Fetch(context.Background(), server.URL, "")
			assert.Error(t, err)
		})
	}
}
