package ingestion

import (
	"context"
	"embed"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFiles, "migrations")
}

type PostgresEventStore struct {
	db      *pgxpool.Pool
	dialect goqu.DialectWrapper
}

func NewPostgresEventStore(db *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{db: db, dialect: goqu.Dialect("postgres")}
}

// Migrate brings the schema up to date.
func (s *PostgresEventStore) Migrate(ctx context.Context) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, s.db, migrations)
}

func (s *PostgresEventStore) InsertEvents(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := insertEventsSql(s.dialect, events)
	if err != nil {
		return errors.WithStack(err)
	}
	return s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql, args...)
		return errors.Wrap(err, "inserting events")
	})
}

func (s *PostgresEventStore) GetEvents(ctx context.Context, page int, perPage int) ([]*Event, error) {
	sql, err := selectEventsSql(s.dialect, page, perPage)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		events = append(events, event)
	}
	return events, errors.WithStack(rows.Err())
}

func (s *PostgresEventStore) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(s.db.Ping(ctx), "postgres ping failed")
}

func (s *PostgresEventStore) Close() error {
	s.db.Close()
	return nil
}
