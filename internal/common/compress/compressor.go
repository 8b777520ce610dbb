package compress

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compressor compresses byte arrays. Implementations must be safe for concurrent use.
type Compressor interface {
	// Compress returns the compressed form of b, or b itself if it was not worth compressing,
	// together with a flag saying which of the two was returned.
	Compress(b []byte) (out []byte, compressed bool, err error)
}

// NoOpCompressor is a Compressor that does nothing. Useful for tests.
type NoOpCompressor struct{}

func (c *NoOpCompressor) Compress(b []byte) ([]byte, bool, error) {
	return b, false, nil
}

// ZstdCompressor compresses with zstd any input of at least minCompressSize bytes.
type ZstdCompressor struct {
	minCompressSize int
	encoder         *zstd.Encoder
}

func NewZstdCompressor(minCompressSize int) (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ZstdCompressor{
		minCompressSize: minCompressSize,
		encoder:         encoder,
	}, nil
}

func (c *ZstdCompressor) Compress(b []byte) ([]byte, bool, error) {
	if len(b) < c.minCompressSize {
		return b, false, nil
	}
	return c.encoder.EncodeAll(b, make([]byte, 0, len(b)/2)), true, nil
}
