// Package batcherrors contains generic errors returned by the batch services.
// HTTP handlers look for the error types defined in this file, using errors.As on the whole chain,
// to choose the response status code.
//
// If multiple errors occur in some function, that function should return an error of type
// multierror.Error from package github.com/hashicorp/go-multierror that encapsulates those individual errors.
package batcherrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "job"
	Value   string // Resource name, e.g., the job id
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batch_size"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrUnsupportedJobType is returned when a job names a type no processor handles.
type ErrUnsupportedJobType struct {
	JobType string
}

func (err *ErrUnsupportedJobType) Error() string {
	return fmt.Sprintf("Unsupported job_type: %s", err.JobType)
}

// ErrPoolUnavailable is returned by executor pools that cannot accept work at all,
// e.g. because no executors are registered or the transport is down.
// Callers are expected to fall back to local processing.
type ErrPoolUnavailable struct {
	Reason string
}

func (err *ErrPoolUnavailable) Error() string {
	return fmt.Sprintf("executor pool unavailable: %s", err.Reason)
}

// ErrChunkExecution is returned when a chunk function failed. It aborts the whole dispatch.
type ErrChunkExecution struct {
	Index int
	Err   error
}

func (err *ErrChunkExecution) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", err.Index, err.Err)
}

func (err *ErrChunkExecution) Unwrap() error {
	return err.Err
}

// HttpStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HttpStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrUnsupportedJobType
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrPoolUnavailable
		if errors.As(err, &e) {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// IsPoolUnavailable reports whether any error in the chain is an ErrPoolUnavailable.
func IsPoolUnavailable(err error) bool {
	var e *ErrPoolUnavailable
	return errors.As(err, &e)
}
