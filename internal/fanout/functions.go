package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/util"
)

const (
	DataChunkFunc = "process_data_chunk"
	TextChunkFunc = "process_text_chunk"
)

// SimulatedDelay stands in for real processing cost. Zero disables it.
type SimulatedDelay struct {
	PerDataItem  time.Duration
	PerTextChunk time.Duration
}

// StandardRegistry returns a registry with the data and text chunk functions used by the orchestrator.
func StandardRegistry(delay SimulatedDelay) *Registry {
	r := NewRegistry()
	r.Register(DataChunkFunc, processDataChunk(delay.PerDataItem))
	r.Register(TextChunkFunc, processTextChunk(delay.PerTextChunk))
	return r
}

// processDataChunk maps every value to "Processed <operation>: <value>".
func processDataChunk(perItem time.Duration) ChunkFunc {
	return func(ctx context.Context, chunk Chunk, args Args) (ChunkResult, error) {
		if chunk.Data == nil {
			return ChunkResult{}, errors.Errorf("chunk %d has no data", chunk.Index)
		}
		if err := util.SleepContext(ctx, perItem*time.Duration(chunk.Data.Len())); err != nil {
			return ChunkResult{}, err
		}
		operation := args.String("operation")
		if operation == "" {
			operation = "standard"
		}
		out := NewOrderedMap()
		chunk.Data.Range(func(key string, value interface{}) bool {
			out.Set(key, fmt.Sprintf("Processed %s: %s", operation, FormatValue(value)))
			return true
		})
		return ChunkResult{Data: out}, nil
	}
}

// processTextChunk computes count and tokenize metrics for one chunk. Operations default to count.
func processTextChunk(perChunk time.Duration) ChunkFunc {
	return func(ctx context.Context, chunk Chunk, args Args) (ChunkResult, error) {
		if err := util.SleepContext(ctx, perChunk); err != nil {
			return ChunkResult{}, err
		}
		operations := normaliseOperations(args.Strings("operations"))
		if len(operations) == 0 {
			operations = []string{OperationCount}
		}
		return ChunkResult{Text: textMetrics(chunk.Text, operations)}, nil
	}
}

func textMetrics(text string, operations []string) *TextMetrics {
	metrics := &TextMetrics{}
	words := strings.Fields(text)
	if contains(operations, OperationCount) {
		metrics.Counted = true
		metrics.WordCount = len(words)
		metrics.CharCount = utf8.RuneCountInString(text)
	}
	if contains(operations, OperationTokenize) {
		metrics.Tokenized = true
		metrics.Tokens = words
	}
	return metrics
}

// FormatValue renders a JSON decoded value the way it appears in processed results:
// strings verbatim, everything else in its JSON form.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	case map[string]interface{}, []interface{}, *OrderedMap:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(value)
}
