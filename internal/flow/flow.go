package flow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/fanout"
)

var (
	ErrNoData = errors.New("No data provided and no source URL specified")
	ErrNoText = errors.New("No text provided and no source URL specified")
)

type RetryConfig struct {
	// Attempts per step, including the first
	Attempts uint
	Delay    time.Duration
}

// Runner executes flows: obtain input, preprocess, process and optionally save.
// Fetching, processing and saving are each retried.
type Runner struct {
	processor *batch.Processor
	fetcher   *Fetcher
	sink      *Sink
	retry     RetryConfig
}

func NewRunner(processor *batch.Processor, fetcher *Fetcher, sink *Sink, retry RetryConfig) *Runner {
	if retry.Attempts == 0 {
		retry.Attempts = 1
	}
	return &Runner{processor: processor, fetcher: fetcher, sink: sink, retry: retry}
}

func (r *Runner) DataFlow(ctx context.Context, spec *FlowSpec) (*batch.Result, error) {
	flowId := util.NewULID()
	logger := log.WithField("flowId", flowId)
	logger.Info("Starting data processing flow")

	options, err := DecodePreprocessOptions(spec.Options)
	if err != nil {
		return nil, err
	}

	data := spec.Data
	if data == nil && spec.SourceUrl != "" {
		raw, err := r.fetch(ctx, spec.SourceUrl, options.AuthToken)
		if err != nil {
			return nil, err
		}
		data = fanout.NewOrderedMap()
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, errors.Wrapf(err, "data fetched from %s is not a JSON object", spec.SourceUrl)
		}
	}
	if data == nil || data.Len() == 0 {
		return nil, ErrNoData
	}

	preprocessed := Preprocess(data, options)
	result, err := r.process(ctx, func() *batch.Result {
		return r.processor.ProcessData(ctx, preprocessed, spec.Options)
	})
	if err != nil {
		return nil, err
	}

	if err := r.save(ctx, result, spec.Destination); err != nil {
		return nil, err
	}
	logger.Info("Data processing flow complete")
	return result, nil
}

func (r *Runner) TextFlow(ctx context.Context, spec *FlowSpec) (*batch.Result, error) {
	flowId := util.NewULID()
	logger := log.WithField("flowId", flowId)
	logger.Info("Starting text processing flow")

	options, err := DecodePreprocessOptions(spec.Options)
	if err != nil {
		return nil, err
	}

	text := spec.Text
	if text == "" && spec.SourceUrl != "" {
		raw, err := r.fetch(ctx, spec.SourceUrl, options.AuthToken)
		if err != nil {
			return nil, err
		}
		var response struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &response); err != nil {
			return nil, errors.Wrapf(err, "response from %s is not a JSON object with a text field", spec.SourceUrl)
		}
		text = response.Text
	}
	if text == "" {
		return nil, ErrNoText
	}

	result, err := r.process(ctx, func() *batch.Result {
		return r.processor.ProcessText(ctx, text, spec.Options)
	})
	if err != nil {
		return nil, err
	}

	if err := r.save(ctx, result, spec.Destination); err != nil {
		return nil, err
	}
	logger.Info("Text processing flow complete")
	return result, nil
}

func (r *Runner) fetch(ctx context.Context, sourceUrl string, authToken string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.do(ctx, "fetch", func() error {
		var err error
		raw, err = r.fetcher.Fetch(ctx, sourceUrl, authToken)
		return err
	})
	return raw, err
}

// process treats an error result as a failed attempt.
func (r *Runner) process(ctx context.Context, run func() *batch.Result) (*batch.Result, error) {
	var result *batch.Result
	err := r.do(ctx, "process", func() error {
		result = run()
		if result.Status == batch.StatusError {
			return errors.New(result.Error)
		}
		return nil
	})
	return result, err
}

func (r *Runner) save(ctx context.Context, result *batch.Result, destination string) error {
	return r.do(ctx, "save", func() error {
		_, err := r.sink.Save(ctx, result, destination)
		return err
	})
}

func (r *Runner) do(ctx context.Context, step string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(r.retry.Attempts),
		retry.Delay(r.retry.Delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("Flow step %s attempt %d failed: %v", step, n+1, err)
		}),
	)
}
