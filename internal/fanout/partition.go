package fanout

import (
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/util"
)

const (
	DefaultBatchSize = 10
	DefaultChunkSize = 1000
)

// PartitionData splits data into chunks of batchSize consecutive entries, keeping insertion order.
// A non-positive batchSize is replaced with DefaultBatchSize.
func PartitionData(data *OrderedMap, batchSize int) []Chunk {
	if batchSize < 1 {
		if batchSize != 0 {
			log.Warnf("Invalid batch size %d, using %d", batchSize, DefaultBatchSize)
		}
		batchSize = DefaultBatchSize
	}
	if data == nil || data.Len() == 0 {
		return []Chunk{}
	}

	batches := util.Batch(data.Keys(), batchSize)
	chunks := make([]Chunk, 0, len(batches))
	for i, keys := range batches {
		chunkData := NewOrderedMap()
		for _, k := range keys {
			v, _ := data.Get(k)
			chunkData.Set(k, v)
		}
		chunks = append(chunks, Chunk{Index: i, Data: chunkData})
	}
	return chunks
}

// PartitionText splits text into chunks of at most chunkSize characters, preferring to cut just before a
// whitespace character so words are not split. When a window contains no whitespace it is cut at the window
// boundary. Concatenating the chunks yields text exactly. A non-positive chunkSize is replaced with
// DefaultChunkSize.
func PartitionText(text string, chunkSize int) []Chunk {
	if chunkSize < 1 {
		if chunkSize != 0 {
			log.Warnf("Invalid chunk size %d, using %d", chunkSize, DefaultChunkSize)
		}
		chunkSize = DefaultChunkSize
	}
	if text == "" {
		return []Chunk{}
	}

	runes := []rune(text)
	n := len(runes)
	if n <= chunkSize {
		return []Chunk{{Index: 0, Text: text}}
	}

	chunks := make([]Chunk, 0, n/chunkSize+1)
	for start := 0; start < n; {
		end := start + chunkSize
		if end >= n {
			end = n
		} else if !unicode.IsSpace(runes[end]) {
			cut := end
			for cut > start && !unicode.IsSpace(runes[cut]) {
				cut--
			}
			if cut > start {
				end = cut
			}
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:end])})
		start = end
	}
	return chunks
}
