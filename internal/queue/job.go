package queue

import (
	"encoding/json"
	"time"

	"github.com/G-Research/batchproc/internal/fanout"
)

type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobStarted  JobStatus = "started"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

// Job is a unit of work waiting in, or taken from, a queue.
type Job struct {
	Id        string                 `json:"id"`
	Type      fanout.JobType         `json:"job_type"`
	Payload   json.RawMessage        `json:"data"`
	Options   map[string]interface{} `json:"options,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// JobInfo is the externally visible state of a job.
type JobInfo struct {
	Id        string
	Type      fanout.JobType
	Status    JobStatus
	Position  int64
	CreatedAt time.Time
	EndedAt   *time.Time
	Result    json.RawMessage
	Error     string
}

type JobSummary struct {
	Id     string    `json:"id"`
	Status JobStatus `json:"status"`
}

type JobList struct {
	Queued   []JobSummary `json:"queued_jobs"`
	Started  []string     `json:"started_jobs"`
	Finished []string     `json:"finished_jobs"`
	Failed   []string     `json:"failed_jobs"`
}

type Config struct {
	Name string `validate:"required"`
	// ResultTTL is how long finished and failed jobs are kept.
	ResultTTL time.Duration
	// Results at least this many bytes long are stored zstd compressed. Zero disables compression.
	MinCompressionSize int `validate:"gte=0"`
}
