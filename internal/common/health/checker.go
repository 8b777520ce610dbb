package health

import (
	"sync"

	"github.com/pkg/errors"
)

// Checker is implemented by anything whose health can be reported on the /health endpoint.
type Checker interface {
	Check() error
}

// CheckerFunc adapts a plain function to the Checker interface.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}

// StartupCompleteChecker reports unhealthy until MarkComplete has been called.
type StartupCompleteChecker struct {
	mu       sync.Mutex
	complete bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{}
}

func (c *StartupCompleteChecker) MarkComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
}

func (c *StartupCompleteChecker) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return nil
	}
	return errors.New("startup is not complete")
}
