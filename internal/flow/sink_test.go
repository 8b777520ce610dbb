package flow

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_File(t *testing.T) {
	dir := t.TempDir()
	destination := "file://" + filepath.ToSlash(filepath.Join(dir, "results.json"))

	written, err := NewSink().Save(context.Background(), map[string]int{"a": 1}, destination)
	require.NoError(t, err)
	assert.Equal(t, destination, written)

	content, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(content))
}

func TestSink_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	sink := NewSink()
	sink.clock = func() time.Time { return time.Unix(1700000000, 0) }

	key, err := sink.Save(context.Background(), map[string]string{"status": "success"}, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.Equal(t, "results:1700000000", key)

	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "success"}`, stored)
}

func TestSink_NoDestination(t *testing.T) {
	written, err := NewSink().Save(context.Background(), []int{1, 2}, "")
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestSink_UnsupportedScheme(t *testing.T) {
	_, err := NewSink().Save(context.Background(), 1, "ftp://host/file")
	assert.Error(t, err)
}

func TestSplitBlobUrl(t *testing.T) {
	tests := map[string]struct {
		destination string
		bucket      string
		key         string
	}{
		"s3":         {"s3://bucket/out/results.json?region=eu-west-1", "s3://bucket?region=eu-west-1", "out/results.json"},
		"gcs":        {"gs://bucket/results.json", "gs://bucket", "results.json"},
		"mem":        {"mem://results.json", "mem://results.json", ""},
		"mem key":    {"mem://bucket/results.json", "mem://bucket", "results.json"},
		"file":       {"file:///tmp/out/results.json", "file:///tmp/out/", "results.json"},
		"bucket url": {"s3://bucket", "s3://bucket", ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			u, err := url.Parse(tc.destination)
			require.NoError(t, err)
			bucket, key := splitBlobUrl(u)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
}
