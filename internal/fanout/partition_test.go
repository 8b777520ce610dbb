package fanout

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderedMapOf(n int) *OrderedMap {
	m := NewOrderedMap()
	for i := 0; i < n; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	return m
}

func TestPartitionData(t *testing.T) {
	tests := map[string]struct {
		size       int
		batchSize  int
		chunkSizes []int
	}{
		"empty":             {size: 0, batchSize: 10, chunkSizes: []int{}},
		"single partial":    {size: 3, batchSize: 10, chunkSizes: []int{3}},
		"exact multiple":    {size: 20, batchSize: 10, chunkSizes: []int{10, 10}},
		"with remainder":    {size: 25, batchSize: 10, chunkSizes: []int{10, 10, 5}},
		"batch size one":    {size: 3, batchSize: 1, chunkSizes: []int{1, 1, 1}},
		"invalid batchsize": {size: 12, batchSize: -1, chunkSizes: []int{10, 2}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			data := orderedMapOf(tc.size)
			chunks := PartitionData(data, tc.batchSize)

			sizes := []int{}
			var keys []string
			for i, chunk := range chunks {
				assert.Equal(t, i, chunk.Index)
				sizes = append(sizes, chunk.Data.Len())
				keys = append(keys, chunk.Data.Keys()...)
			}
			assert.Equal(t, tc.chunkSizes, sizes)
			if tc.size > 0 {
				assert.Equal(t, data.Keys(), keys)
			}
		})
	}
}

func TestPartitionText_Examples(t *testing.T) {
	tests := map[string]struct {
		text      string
		chunkSize int
		expected  []string
	}{
		"empty":                  {text: "", chunkSize: 10, expected: []string{}},
		"shorter than chunk":     {text: "hello world", chunkSize: 1000, expected: []string{"hello world"}},
		"exactly chunk size":     {text: "abcde", chunkSize: 5, expected: []string{"abcde"}},
		"cuts before whitespace": {text: "hello world foo", chunkSize: 8, expected: []string{"hello", " world", " foo"}},
		"no whitespace":          {text: "abcdefghij", chunkSize: 4, expected: []string{"abcd", "efgh", "ij"}},
		"boundary on whitespace": {text: "abcd efgh", chunkSize: 4, expected: []string{"abcd", " efg", "h"}},
		"multibyte characters":   {text: "héllo wörld", chunkSize: 7, expected: []string{"héllo", " wörld"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			chunks := PartitionText(tc.text, tc.chunkSize)
			texts := []string{}
			for i, chunk := range chunks {
				assert.Equal(t, i, chunk.Index)
				texts = append(texts, chunk.Text)
			}
			assert.Equal(t, tc.expected, texts)
		})
	}
}

func TestPartitionText_IsLossless(t *testing.T) {
	words := []string{"alpha", "be", "gamma-delta", "ε", "   ", "longwordwithoutanyspaces", "x\ty", "\n"}
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString(words[i%len(words)])
		if i%3 != 0 {
			sb.WriteString(" ")
		}
	}
	text := sb.String()

	for _, size := range []int{1, 2, 7, 13, 100, 1000} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			chunks := PartitionText(text, size)
			var rebuilt strings.Builder
			for _, chunk := range chunks {
				require.NotEmpty(t, chunk.Text)
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), size)
				rebuilt.WriteString(chunk.Text)
			}
			assert.Equal(t, text, rebuilt.String())
		})
	}
}
