package queue

import (
	"fmt"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
)

type ErrJobNotFound struct {
	JobId string
}

func (err *ErrJobNotFound) Error() string {
	return fmt.Sprintf("could not find job %q", err.JobId)
}

// Unwrap lets callers treat a missing job as a generic not found error.
func (err *ErrJobNotFound) Unwrap() error {
	return &batcherrors.ErrNotFound{Type: "job", Value: err.JobId}
}
