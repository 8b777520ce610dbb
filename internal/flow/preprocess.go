package flow

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/fanout"
)

type PreprocessOptions struct {
	SkipKeys         []string `mapstructure:"skip_keys"`
	LowercaseStrings bool     `mapstructure:"lowercase_strings"`
	AuthToken        string   `mapstructure:"auth_token"`
}

func DecodePreprocessOptions(raw map[string]interface{}) (PreprocessOptions, error) {
	options := PreprocessOptions{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &options,
	})
	if err != nil {
		return options, errors.WithStack(err)
	}
	return options, errors.Wrap(decoder.Decode(raw), "decoding flow options")
}

// Preprocess drops skipped keys and optionally lower cases string values. The input is left untouched.
func Preprocess(data *fanout.OrderedMap, options PreprocessOptions) *fanout.OrderedMap {
	skip := make(map[string]bool, len(options.SkipKeys))
	for _, k := range options.SkipKeys {
		skip[k] = true
	}

	out := fanout.NewOrderedMap()
	data.Range(func(key string, value interface{}) bool {
		if skip[key] {
			return true
		}
		if s, ok := value.(string); ok && options.LowercaseStrings {
			value = strings.ToLower(s)
		}
		out.Set(key, value)
		return true
	})
	return out
}
