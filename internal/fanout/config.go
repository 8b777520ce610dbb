package fanout

import "time"

const (
	LocalBackend = "local"
	RedisBackend = "redis"
)

type Config struct {
	// Backend selects the pool: "local" runs chunks in process, "redis" fans them out to chunk executors.
	Backend string `validate:"oneof=local redis"`
	// MaxWorkers bounds the local pool. Zero means one per CPU.
	MaxWorkers int `validate:"gte=0"`
	// DispatchTimeout bounds the whole dispatch barrier. Zero means no timeout.
	DispatchTimeout time.Duration
	// PollInterval is how long a single blocking pop waits before the context is checked again.
	PollInterval   time.Duration
	SimulatedDelay SimulatedDelay
	Executor       ExecutorConfig
}

type ExecutorConfig struct {
	Concurrency       int `validate:"gte=0"`
	HeartbeatInterval time.Duration
	// ReplyTTL is how long unread replies survive, e.g. when their dispatch was aborted.
	ReplyTTL time.Duration
}
