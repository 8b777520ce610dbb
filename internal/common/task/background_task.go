package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

type task struct {
	function   func()
	interval   time.Duration
	metricName string
	stop       chan struct{}
	latency    prometheus.Histogram
}

// BackgroundTaskManager runs functions periodically until StopAll is called.
// It is not threadsafe, it should only be accessed from a single goroutine.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	registerer    prometheus.Registerer
	wg            sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return NewBackgroundTaskManagerWithRegisterer(metricsPrefix, prometheus.DefaultRegisterer)
}

func NewBackgroundTaskManagerWithRegisterer(metricsPrefix string, registerer prometheus.Registerer) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		metricsPrefix: metricsPrefix,
		registerer:    registerer,
	}
}

// Register starts backgroundTask immediately and then runs it every interval. Its latency is exported as
// <metricsPrefix><metricName>_latency_seconds.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	t := &task{
		function:   backgroundTask,
		interval:   interval,
		metricName: metricName,
		stop:       make(chan struct{}),
		latency: promauto.With(m.registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    m.metricsPrefix + metricName + "_latency_seconds",
			Help:    "Background loop " + metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
	}
	m.tasks = append(m.tasks, t)
	m.wg.Add(1)
	go m.run(t)
}

// StopAll signals every task to stop and waits up to timeout for them to finish.
// Returns true if the timeout expired first.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		close(t.stop)
	}
	m.tasks = nil

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		log.Warnf("Background tasks did not stop within %s", timeout)
		return true
	}
}

func (m *BackgroundTaskManager) run(t *task) {
	defer m.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		t.function()
		t.latency.Observe(time.Since(start).Seconds())

		select {
		case <-ticker.C:
		case <-t.stop:
			return
		}
	}
}
