package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/batchproc/internal/fanout"
)

func TestPreprocess(t *testing.T) {
	tests := map[string]struct {
		options  map[string]interface{}
		expected string
	}{
		"no options": {
			expected: `{"Name":"Alice","secret":"x","n":1}`,
		},
		"skip keys": {
			options:  map[string]interface{}{"skip_keys": []interface{}{"secret"}},
			expected: `{"Name":"Alice","n":1}`,
		},
		"lowercase strings": {
			options:  map[string]interface{}{"lowercase_strings": "true"},
			expected: `{"Name":"alice","secret":"x","n":1}`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			data := fanout.NewOrderedMap()
			data.Set("Name", "Alice")
			data.Set("secret", "x")
			data.Set("n", int64(1))

			options, err := DecodePreprocessOptions(tc.options)
			require.NoError(t, err)
			content, err := Preprocess(data, options).MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(content))
			assert.Equal(t, 3, data.Len())
		})
	}
}
