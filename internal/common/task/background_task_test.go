package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestBackgroundTaskManager_RunsUntilStopped(t *testing.T) {
	m := NewBackgroundTaskManagerWithRegisterer("test_", prometheus.NewRegistry())

	var calls int32
	m.Register(func() { atomic.AddInt32(&calls, 1) }, 5*time.Millisecond, "counter")

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)

	timedOut := m.StopAll(time.Second)
	assert.False(t, timedOut)

	stoppedAt := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, atomic.LoadInt32(&calls))
}

func TestBackgroundTaskManager_StopAllTimesOut(t *testing.T) {
	m := NewBackgroundTaskManagerWithRegisterer("test_", prometheus.NewRegistry())

	release := make(chan struct{})
	started := make(chan struct{})
	m.Register(func() {
		close(started)
		<-release
	}, time.Hour, "blocking")
	<-started

	assert.True(t, m.StopAll(10*time.Millisecond))
	close(release)
}
