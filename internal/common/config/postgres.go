package config

import "time"

type PostgresConfig struct {
	// libpq style key/value pairs, e.g. host, port, user, password, dbname, sslmode
	Connection     map[string]string `validate:"required"`
	MaxConns       int32             `validate:"gte=0"`
	ConnectRetries uint
	RetryDelay     time.Duration
}
