package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstd_RoundTripAboveThreshold(t *testing.T) {
	compressor, err := NewZstdCompressor(64)
	require.NoError(t, err)
	decompressor, err := NewZstdDecompressor()
	require.NoError(t, err)

	input := []byte(strings.Repeat(`{"key":"Processed standard: value"},`, 100))

	compressed, ok, err := compressor.Compress(input)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, len(compressed), len(input))

	output, err := decompressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, output)
}

func TestZstd_SmallInputLeftAlone(t *testing.T) {
	compressor, err := NewZstdCompressor(1024)
	require.NoError(t, err)

	input := []byte(`{"status":"success"}`)
	out, ok, err := compressor.Compress(input)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, input, out)
}

func TestZstdDecompressor_RejectsGarbage(t *testing.T) {
	decompressor, err := NewZstdDecompressor()
	require.NoError(t, err)
	_, err = decompressor.Decompress([]byte("not zstd"))
	assert.Error(t, err)
}
