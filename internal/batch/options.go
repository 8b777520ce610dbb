package batch

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
)

// Options are the free form job options. Unknown keys are ignored.
type Options struct {
	BatchSize  int      `mapstructure:"batch_size"`
	ChunkSize  int      `mapstructure:"chunk_size"`
	UseRay     *bool    `mapstructure:"use_ray"`
	Distribute *bool    `mapstructure:"distributed"`
	Operation  string   `mapstructure:"operation"`
	Operations []string `mapstructure:"operations"`
}

// Distributed reports whether the job should be fanned out. "distributed" takes precedence over the legacy
// "use_ray" flag; both default to true.
func (o Options) Distributed() bool {
	if o.Distribute != nil {
		return *o.Distribute
	}
	if o.UseRay != nil {
		return *o.UseRay
	}
	return true
}

// DecodeOptions converts raw job options, accepting loosely typed values such as "5" for 5 or "true" for true.
func DecodeOptions(raw map[string]interface{}) (Options, error) {
	options := Options{}
	if len(raw) == 0 {
		return options, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &options,
	})
	if err != nil {
		return options, errors.WithStack(err)
	}
	if err := decoder.Decode(raw); err != nil {
		return options, &batcherrors.ErrInvalidArgument{Name: "options", Value: raw, Message: err.Error()}
	}
	if options.BatchSize < 0 {
		return options, &batcherrors.ErrInvalidArgument{Name: "batch_size", Value: options.BatchSize, Message: "must be positive"}
	}
	if options.ChunkSize < 0 {
		return options, &batcherrors.ErrInvalidArgument{Name: "chunk_size", Value: options.ChunkSize, Message: "must be positive"}
	}
	return options, nil
}
