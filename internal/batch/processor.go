package batch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/fanout"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DistributedTextThreshold is the text length, in characters, above which text jobs are fanned out.
const DistributedTextThreshold = 1000

// Result is what a job produces. It is stored as the job result, so every field is serialised.
type Result struct {
	Status         Status      `json:"status"`
	ProcessingTime float64     `json:"processing_time,omitempty"`
	ItemsProcessed *int        `json:"items_processed,omitempty"`
	TextLength     *int        `json:"text_length,omitempty"`
	Results        interface{} `json:"results,omitempty"`
	Error          string      `json:"error,omitempty"`
}

func errorResult(err error) *Result {
	return &Result{Status: StatusError, Error: err.Error()}
}

// Processor runs data and text jobs, fanning large ones out through the orchestrator.
type Processor struct {
	orchestrator *fanout.Orchestrator
	perItemDelay time.Duration
}

// NewProcessor creates a Processor. perItemDelay is the simulated cost of each item on the sequential data path.
func NewProcessor(orchestrator *fanout.Orchestrator, perItemDelay time.Duration) *Processor {
	return &Processor{orchestrator: orchestrator, perItemDelay: perItemDelay}
}

// Process dispatches on jobType. It never returns nil and never panics on bad input;
// problems are reported through a Result with StatusError.
func (p *Processor) Process(ctx context.Context, jobType fanout.JobType, payload interface{}, rawOptions map[string]interface{}) *Result {
	switch jobType {
	case fanout.DataProcessing:
		return p.ProcessData(ctx, payload, rawOptions)
	case fanout.TextProcessing:
		return p.ProcessText(ctx, payload, rawOptions)
	}
	return errorResult(&batcherrors.ErrUnsupportedJobType{JobType: string(jobType)})
}

func (p *Processor) ProcessData(ctx context.Context, payload interface{}, rawOptions map[string]interface{}) *Result {
	start := time.Now()
	data, ok := asMapping(payload)
	if !ok {
		return &Result{Status: StatusError, Error: "Data must be a dictionary"}
	}
	options, err := DecodeOptions(rawOptions)
	if err != nil {
		return errorResult(err)
	}

	var results interface{}
	if options.Distributed() {
		results = p.orchestrator.RunDistributedTask(ctx, fanout.DataProcessing, data, fanout.TaskOptions{
			BatchSize: options.BatchSize,
			Operation: options.Operation,
		})
	} else {
		processed, err := p.processSequentially(ctx, data)
		if err != nil {
			return errorResult(err)
		}
		results = processed
	}

	items := data.Len()
	result := &Result{
		Status:         StatusSuccess,
		ProcessingTime: time.Since(start).Seconds(),
		ItemsProcessed: &items,
		Results:        results,
	}
	log.Infof("Processed %d data items in %.3fs", items, result.ProcessingTime)
	return result
}

func (p *Processor) processSequentially(ctx context.Context, data *fanout.OrderedMap) (*fanout.OrderedMap, error) {
	out := fanout.NewOrderedMap()
	for _, key := range data.Keys() {
		if err := util.SleepContext(ctx, p.perItemDelay); err != nil {
			return nil, err
		}
		value, _ := data.Get(key)
		out.Set(key, fmt.Sprintf("Processed: %s", fanout.FormatValue(value)))
	}
	return out, nil
}

func (p *Processor) ProcessText(ctx context.Context, payload interface{}, rawOptions map[string]interface{}) *Result {
	start := time.Now()
	text, ok := asText(payload)
	if !ok {
		return &Result{Status: StatusError, Error: "Text must be a string"}
	}
	options, err := DecodeOptions(rawOptions)
	if err != nil {
		return errorResult(err)
	}
	operations := options.Operations
	if len(operations) == 0 {
		operations = []string{fanout.OperationCount, fanout.OperationTokenize}
	}

	length := utf8.RuneCountInString(text)
	var results interface{}
	if options.Distributed() && length > DistributedTextThreshold {
		results = p.orchestrator.RunDistributedTask(ctx, fanout.TextProcessing, text, fanout.TaskOptions{
			ChunkSize:  options.ChunkSize,
			Operations: operations,
		})
	} else {
		results = analyseText(text, operations)
	}

	result := &Result{
		Status:         StatusSuccess,
		ProcessingTime: time.Since(start).Seconds(),
		TextLength:     &length,
		Results:        results,
	}
	log.Infof("Processed text of %d characters in %.3fs", length, result.ProcessingTime)
	return result
}

// analyseText is the in process text path. Unique tokens are computed over lower cased tokens.
func analyseText(text string, operations []string) *fanout.TextResult {
	result := &fanout.TextResult{}
	words := strings.Fields(text)
	for _, op := range operations {
		switch strings.ToLower(op) {
		case fanout.OperationCount:
			result.Counted = true
			result.WordCount = len(words)
			result.CharCount = utf8.RuneCountInString(text)
		case fanout.OperationTokenize:
			result.Tokenized = true
			result.Tokens = firstN(words, fanout.MaxTokens)
			result.UniqueTokens = firstN(uniqueLower(words), fanout.MaxTokens)
		case fanout.OperationSentiment:
			result.Sentiment = fanout.ClassifySentiment(text)
		}
	}
	return result
}

func uniqueLower(words []string) []string {
	seen := make(map[string]bool, len(words))
	unique := []string{}
	for _, w := range words {
		lower := strings.ToLower(w)
		if !seen[lower] {
			seen[lower] = true
			unique = append(unique, lower)
		}
	}
	return unique
}

func firstN(s []string, n int) []string {
	if s == nil {
		return []string{}
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
