package ingestion

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common"
	"github.com/G-Research/batchproc/internal/common/config"
	"github.com/G-Research/batchproc/internal/common/database"
	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/common/util"
	"github.com/G-Research/batchproc/internal/ingestion/configuration"
)

// Serve runs the ingestion API until ctx is cancelled.
func Serve(ctx context.Context, cfg *configuration.IngestionConfiguration) error {
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid ingestion configuration")
	}

	startupComplete := health.NewStartupCompleteChecker()
	shutdownMetrics := common.ServeMetrics(cfg.MetricsPort)
	defer shutdownMetrics()

	store, err := OpenEventStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer util.CloseResource("event store", store)

	db := cfg.Redis.NewClient()
	defer util.CloseResource("redis", db)

	checker := health.NewMultiChecker(startupComplete, store)
	server := NewServer(store, db, checker)
	shutdownHttp := common.ServeHttp(cfg.HttpPort, server.Routes())
	defer shutdownHttp()

	startupComplete.MarkComplete()
	log.Infof("Ingestion API storing events in %s, serving on port %d", cfg.DatabaseType, cfg.HttpPort)
	<-ctx.Done()
	return nil
}

func OpenEventStore(ctx context.Context, cfg *configuration.IngestionConfiguration) (EventStore, error) {
	switch cfg.DatabaseType {
	case configuration.SqliteDatabase:
		return NewSQLiteEventStore(cfg.SqlitePath)
	case configuration.PostgresDatabase:
		db, err := database.OpenPgxPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store := NewPostgresEventStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown database type %q", cfg.DatabaseType)
	}
}
