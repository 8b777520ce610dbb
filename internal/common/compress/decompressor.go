package compress

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Decompressor reverses a Compressor. Implementations must be safe for concurrent use.
type Decompressor interface {
	Decompress(b []byte) ([]byte, error)
}

// NoOpDecompressor is a Decompressor that does nothing. Useful for tests.
type NoOpDecompressor struct{}

func (c *NoOpDecompressor) Decompress(b []byte) ([]byte, error) {
	return b, nil
}

type ZstdDecompressor struct {
	decoder *zstd.Decoder
}

func NewZstdDecompressor() (*ZstdDecompressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ZstdDecompressor{decoder: decoder}, nil
}

func (d *ZstdDecompressor) Decompress(b []byte) ([]byte, error) {
	out, err := d.decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}
