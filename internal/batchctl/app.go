// Package batchctl implements the batchctl commands. Each command is a method on App and writes its
// output to App.Out.
package batchctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/batch"
	"github.com/G-Research/batchproc/internal/batchapi"
	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/fanout"
	"github.com/G-Research/batchproc/internal/flow"
)

type FetchConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Params are loaded from config/batchctl and the --config override.
type Params struct {
	// Base url of the batch API, e.g. http://localhost:5000
	ApiUrl         string `validate:"required"`
	RequestTimeout time.Duration
	// Simulated cost of each item when a flow processes data sequentially
	SequentialItemDelay time.Duration

	Fetch  FetchConfig
	Retry  flow.RetryConfig
	Fanout fanout.Config
	// Only used when Fanout.Backend is redis
	Redis config.RedisConfig
}

type App struct {
	Params *Params
	Out    io.Writer
	// Set by the first flow command and reused afterwards
	runner *flow.Runner
}

func New(params *Params) *App {
	return &App{Params: params, Out: os.Stdout}
}

func (a *App) flowRunner() *flow.Runner {
	if a.runner != nil {
		return a.runner
	}
	registry := fanout.StandardRegistry(a.Params.Fanout.SimulatedDelay)
	var db redis.UniversalClient
	if a.Params.Fanout.Backend == fanout.RedisBackend {
		db = a.Params.Redis.NewClient()
	}
	pool := fanout.NewPool(a.Params.Fanout, registry, db)
	processor := batch.NewProcessor(fanout.NewOrchestrator(pool, a.Params.Fanout.DispatchTimeout), a.Params.SequentialItemDelay)
	a.runner = flow.NewRunner(processor, flow.NewFetcher(a.Params.Fetch.Timeout, a.Params.Fetch.CacheTTL), flow.NewSink(), a.Params.Retry)
	return a.runner
}

// DataFlow runs the data flow described by the spec file, with destination overriding the file's one if set.
func (a *App) DataFlow(ctx context.Context, specFile string, destination string) error {
	spec, err := loadSpec(specFile, destination)
	if err != nil {
		return errors.Errorf("[batchctl.DataFlow] error loading flow spec %s: %s", specFile, err)
	}
	result, err := a.flowRunner().DataFlow(ctx, spec)
	if err != nil {
		return errors.Errorf("[batchctl.DataFlow] error running flow: %s", err)
	}
	return a.printJson(result)
}

func (a *App) TextFlow(ctx context.Context, specFile string, destination string) error {
	spec, err := loadSpec(specFile, destination)
	if err != nil {
		return errors.Errorf("[batchctl.TextFlow] error loading flow spec %s: %s", specFile, err)
	}
	result, err := a.flowRunner().TextFlow(ctx, spec)
	if err != nil {
		return errors.Errorf("[batchctl.TextFlow] error running flow: %s", err)
	}
	return a.printJson(result)
}

func loadSpec(specFile string, destination string) (*flow.FlowSpec, error) {
	spec, err := flow.LoadFlowSpec(specFile)
	if err != nil {
		return nil, err
	}
	if destination != "" {
		spec.Destination = destination
	}
	return spec, nil
}

// Enqueue submits a job to the batch API. data must be JSON; options, if set, a JSON object.
func (a *App) Enqueue(ctx context.Context, jobType string, data string, options string) error {
	if !json.Valid([]byte(data)) {
		return errors.Errorf("[batchctl.Enqueue] data is not valid JSON: %s", data)
	}
	var decodedOptions map[string]interface{}
	if options != "" {
		if err := json.Unmarshal([]byte(options), &decodedOptions); err != nil {
			return errors.Errorf("[batchctl.Enqueue] options must be a JSON object: %s", err)
		}
	}

	response, err := a.client().Enqueue(ctx, jobType, json.RawMessage(data), decodedOptions)
	if err != nil {
		return errors.Errorf("[batchctl.Enqueue] error enqueueing %s job: %s", jobType, err)
	}
	fmt.Fprintf(a.Out, "Enqueued job %s at position %d\n", response.JobId, response.Position)
	return nil
}

func (a *App) Status(ctx context.Context, jobId string) error {
	status, err := a.client().JobStatus(ctx, jobId)
	if err != nil {
		return errors.Errorf("[batchctl.Status] error getting job %s: %s", jobId, err)
	}
	return a.printJson(status)
}

func (a *App) client() *batchapi.Client {
	return batchapi.NewClient(a.Params.ApiUrl, a.Params.RequestTimeout)
}

func (a *App) printJson(v interface{}) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = fmt.Fprintln(a.Out, string(content))
	return errors.WithStack(err)
}
