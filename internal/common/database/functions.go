package database

import (
	"context"
	"sort"
	"strings"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/config"
)

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

// OpenPgxPool connects to Postgres and pings it, retrying ConnectRetries times so that services
// can start before the database is accepting connections.
func OpenPgxPool(ctx context.Context, config config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	attempts := config.ConnectRetries
	if attempts == 0 {
		attempts = 1
	}

	var db *pgxpool.Pool
	err = retry.Do(
		func() error {
			pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
			if err != nil {
				return err
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return err
			}
			db = pool
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("Postgres connection attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return db, nil
}
