package fanout

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// processDataLocally is used when no executor pool is available.
func processDataLocally(data *OrderedMap) *OrderedMap {
	out := NewOrderedMap()
	data.Range(func(key string, value interface{}) bool {
		out.Set(key, fmt.Sprintf("Locally processed: %s", FormatValue(value)))
		return true
	})
	return out
}

// processTextLocally computes count and tokenize over the whole text. Unlike the distributed path it
// reports no unique tokens.
func processTextLocally(text string, operations []string) *TextResult {
	result := &TextResult{}
	words := strings.Fields(text)
	if contains(operations, OperationCount) {
		result.Counted = true
		result.WordCount = len(words)
		result.CharCount = utf8.RuneCountInString(text)
	}
	if contains(operations, OperationTokenize) {
		result.Tokenized = true
		result.Tokens = truncate(words, MaxTokens)
	}
	return result
}
