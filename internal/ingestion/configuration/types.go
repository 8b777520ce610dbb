package configuration

import "github.com/G-Research/batchproc/internal/common/config"

const (
	PostgresDatabase = "postgres"
	SqliteDatabase   = "sqlite"
)

type IngestionConfiguration struct {
	HttpPort    uint16 `validate:"required"`
	MetricsPort uint16
	// Either postgres or sqlite
	DatabaseType string `validate:"oneof=postgres sqlite"`
	SqlitePath   string `validate:"required_if=DatabaseType sqlite"`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
}
