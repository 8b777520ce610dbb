package fanout

import (
	"sort"

	"github.com/pkg/errors"
)

// MergeData combines data chunk results in chunk order. If a key occurs in several chunks the
// later chunk wins, but the key keeps its first position.
func MergeData(results []ChunkResult) (*OrderedMap, error) {
	sorted := sortedByIndex(results)
	merged := NewOrderedMap()
	for _, result := range sorted {
		if result.Data == nil {
			return nil, errors.Errorf("chunk %d returned no data", result.Index)
		}
		result.Data.Range(func(key string, value interface{}) bool {
			merged.Set(key, value)
			return true
		})
	}
	return merged, nil
}

// MergeText combines text chunk results. Counts are summed. Tokens are concatenated in chunk order and
// truncated to MaxTokens; unique tokens are drawn from all tokens, in no particular order, and also truncated.
func MergeText(results []ChunkResult, operations []string) (*TextResult, error) {
	sorted := sortedByIndex(results)
	merged := &TextResult{
		Counted:   contains(operations, OperationCount),
		Tokenized: contains(operations, OperationTokenize),
	}

	var allTokens []string
	for _, result := range sorted {
		if result.Text == nil {
			return nil, errors.Errorf("chunk %d returned no text metrics", result.Index)
		}
		merged.WordCount += result.Text.WordCount
		merged.CharCount += result.Text.CharCount
		allTokens = append(allTokens, result.Text.Tokens...)
	}

	if merged.Tokenized {
		merged.Tokens = truncate(allTokens, MaxTokens)
		merged.UniqueTokens = truncate(uniqueTokens(allTokens), MaxTokens)
	}
	return merged, nil
}

func sortedByIndex(results []ChunkResult) []ChunkResult {
	sorted := make([]ChunkResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted
}

func uniqueTokens(tokens []string) []string {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	unique := make([]string, 0, len(set))
	for token := range set {
		unique = append(unique, token)
	}
	return unique
}

func truncate(tokens []string, n int) []string {
	if tokens == nil {
		return []string{}
	}
	if len(tokens) > n {
		return tokens[:n]
	}
	return tokens
}
