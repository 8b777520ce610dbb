package fanout

import (
	"encoding/json"
	"fmt"
	"strings"
)

type JobType string

const (
	DataProcessing JobType = "data_processing"
	TextProcessing JobType = "text_processing"
)

func (t JobType) Valid() bool {
	return t == DataProcessing || t == TextProcessing
}

// Text operations understood by the text chunk function and the local text processor.
const (
	OperationCount     = "count"
	OperationTokenize  = "tokenize"
	OperationSentiment = "sentiment"
)

// MaxTokens bounds the token lists carried in text results.
const MaxTokens = 100

// Chunk is one independently processable piece of a job payload. Exactly one of Data and Text is set.
type Chunk struct {
	Index int         `json:"index"`
	Data  *OrderedMap `json:"data,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// Args are the extra arguments shipped alongside every chunk of a dispatch. They travel as JSON,
// so values must survive a JSON round trip.
type Args map[string]interface{}

// String returns the string stored under key, or "" if there is none.
func (a Args) String(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// Strings returns the list of strings stored under key, accepting both []string and the
// []interface{} produced by JSON decoding.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// TextMetrics are the per chunk results of text processing.
type TextMetrics struct {
	Counted   bool     `json:"counted,omitempty"`
	WordCount int      `json:"word_count,omitempty"`
	CharCount int      `json:"char_count,omitempty"`
	Tokenized bool     `json:"tokenized,omitempty"`
	Tokens    []string `json:"tokens,omitempty"`
}

// ChunkResult is what a chunk function returns. Exactly one of Data and Text is set.
type ChunkResult struct {
	Index int          `json:"index"`
	Data  *OrderedMap  `json:"data,omitempty"`
	Text  *TextMetrics `json:"text,omitempty"`
}

type Sentiment struct {
	Label         string `json:"label"`
	PositiveWords int    `json:"positive_words"`
	NegativeWords int    `json:"negative_words"`
}

// TextResult is the merged result of a text job. Only the metrics that were asked for are serialised.
type TextResult struct {
	Counted      bool
	WordCount    int
	CharCount    int
	Tokenized    bool
	Tokens       []string
	UniqueTokens []string
	Sentiment    *Sentiment
}

func (r *TextResult) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if r.Counted {
		out["word_count"] = r.WordCount
		out["char_count"] = r.CharCount
	}
	if r.Tokenized {
		out["tokens"] = nonNil(r.Tokens)
		if r.UniqueTokens != nil {
			out["unique_tokens"] = r.UniqueTokens
		}
	}
	if r.Sentiment != nil {
		out["sentiment"] = r.Sentiment
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// TaskOptions tune partitioning and are passed through to chunk functions.
type TaskOptions struct {
	BatchSize  int
	ChunkSize  int
	Operation  string
	Operations []string
}

// Outcome is the result of a distributed task. Either Err is set, or Data / Text according to the job type.
// Errors are captured here rather than returned so that callers always get a serialisable result.
type Outcome struct {
	Data *OrderedMap
	Text *TextResult
	Err  error
	// Local is true when the pool was unavailable and the task ran in process.
	Local bool
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch {
	case o.Err != nil:
		return json.Marshal(map[string]string{"error": o.Err.Error()})
	case o.Data != nil:
		return o.Data.MarshalJSON()
	case o.Text != nil:
		return o.Text.MarshalJSON()
	}
	return []byte("{}"), nil
}

func normaliseOperations(operations []string) []string {
	out := make([]string, 0, len(operations))
	for _, op := range operations {
		out = append(out, strings.ToLower(strings.TrimSpace(op)))
	}
	return out
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
