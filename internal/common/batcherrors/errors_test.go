package batcherrors

import (
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHttpStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err    error
		status int
	}{
		"nil":               {err: nil, status: http.StatusOK},
		"not found":         {err: &ErrNotFound{Type: "job", Value: "abc"}, status: http.StatusNotFound},
		"wrapped not found": {err: errors.Wrap(&ErrNotFound{Value: "abc"}, "fetching"), status: http.StatusNotFound},
		"invalid argument":  {err: &ErrInvalidArgument{Name: "data", Value: 1}, status: http.StatusBadRequest},
		"unsupported type":  {err: &ErrUnsupportedJobType{JobType: "video"}, status: http.StatusBadRequest},
		"pool unavailable":  {err: &ErrPoolUnavailable{Reason: "no executors"}, status: http.StatusServiceUnavailable},
		"unknown":           {err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.status, HttpStatusFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Unsupported job_type: video", (&ErrUnsupportedJobType{JobType: "video"}).Error())
	assert.Equal(t, `resource "abc" of type "job" does not exist`, (&ErrNotFound{Type: "job", Value: "abc"}).Error())
	assert.Equal(t, `resource "abc" does not exist; gone`, (&ErrNotFound{Value: "abc", Message: "gone"}).Error())
	assert.Equal(t, `value 0 is invalid for field "batch_size"; must be positive`,
		(&ErrInvalidArgument{Name: "batch_size", Value: 0, Message: "must be positive"}).Error())
}

func TestChunkExecutionUnwraps(t *testing.T) {
	cause := errors.New("division by zero")
	err := errors.Wrap(&ErrChunkExecution{Index: 3, Err: cause}, "dispatch")

	var chunkErr *ErrChunkExecution
	assert.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, 3, chunkErr.Index)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "chunk 3 failed: division by zero")
}

func TestIsPoolUnavailable(t *testing.T) {
	assert.True(t, IsPoolUnavailable(errors.WithStack(&ErrPoolUnavailable{Reason: "down"})))
	assert.True(t, IsPoolUnavailable(multierror.Append(nil, &ErrPoolUnavailable{Reason: "down"})))
	assert.False(t, IsPoolUnavailable(&ErrChunkExecution{Index: 1, Err: errors.New("x")}))
}
