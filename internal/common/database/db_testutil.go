package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/util"
)

// TestConnectionString points at the Postgres instance used by integration tests.
const TestConnectionString = "host=localhost port=5432 user=postgres password=psw sslmode=disable"

// ErrNoTestDatabase is returned by WithTestDb when no Postgres instance is reachable.
var ErrNoTestDatabase = errors.New("no postgres instance available for tests")

// WithTestDb creates a dedicated database, applies migrations and hands a pool for it to action.
// The database is dropped afterwards.
func WithTestDb(migrations []Migration, action func(db *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 2*time.Second)
	defer connectCancel()
	admin, err := pgx.Connect(connectCtx, TestConnectionString)
	if err != nil {
		return ErrNoTestDatabase
	}
	defer admin.Close(ctx)

	dbName := "test_" + util.NewULID()
	if _, err := admin.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_, err := admin.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			log.Warnf("Failed to disconnect users from %s: %v", dbName, err)
		}
		if _, err := admin.Exec(ctx, "DROP DATABASE "+dbName); err != nil {
			log.Warnf("Failed to drop %s: %v", dbName, err)
		}
	}()

	pool, err := pgxpool.Connect(ctx, TestConnectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer pool.Close()

	if err := UpdateDatabase(ctx, pool, migrations); err != nil {
		return err
	}
	return action(pool)
}
