package batchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/queue"
)

// JobStatusResponse is the body of GET /job/{id}.
type JobStatusResponse struct {
	JobId         string          `json:"job_id"`
	Status        queue.JobStatus `json:"status"`
	QueuePosition *int64          `json:"queue_position"`
	CreatedAt     time.Time       `json:"created_at"`
	EndedAt       *time.Time      `json:"ended_at"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type EnqueueResponse struct {
	JobId    string          `json:"job_id"`
	Status   queue.JobStatus `json:"status"`
	Position int64           `json:"position"`
}

// Client talks to a batch API server.
type Client struct {
	baseUrl string
	http    *http.Client
}

func NewClient(baseUrl string, timeout time.Duration) *Client {
	return &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enqueue(ctx context.Context, jobType string, data json.RawMessage, options map[string]interface{}) (*EnqueueResponse, error) {
	body, err := json.Marshal(enqueueRequest{JobType: jobType, Data: data, Options: options})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	response := &EnqueueResponse{}
	if err := c.do(ctx, http.MethodPost, "/enqueue", body, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) JobStatus(ctx context.Context, jobId string) (*JobStatusResponse, error) {
	response := &JobStatusResponse{}
	if err := c.do(ctx, http.MethodGet, "/job/"+jobId, nil, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	if resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(content, &failure)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return &batcherrors.ErrNotFound{Type: "job", Value: strings.TrimPrefix(path, "/job/"), Message: failure.Error}
		case http.StatusBadRequest:
			return &batcherrors.ErrInvalidArgument{Name: "request", Value: path, Message: failure.Error}
		}
		return errors.Errorf("%s %s failed with %s: %s", method, path, resp.Status, failure.Error)
	}
	return errors.WithStack(json.Unmarshal(content, out))
}
