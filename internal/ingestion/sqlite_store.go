package ingestion

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const createSqliteEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER     PRIMARY KEY AUTOINCREMENT,
	event_type VARCHAR(50) NOT NULL,
	timestamp  VARCHAR(50) NOT NULL,
	metadata   TEXT        NOT NULL DEFAULT '{}'
)`

// SQLiteEventStore keeps events in a local SQLite file, for development and tests.
type SQLiteEventStore struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	// SQLite allows a single writer at a time
	writeLock sync.Mutex
}

func NewSQLiteEventStore(path string) (*SQLiteEventStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating directory %s for sqlite db", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite db %s", path)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", createSqliteEventsTable} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "setting up sqlite db %s", path)
		}
	}
	return &SQLiteEventStore{db: db, dialect: goqu.Dialect("sqlite3")}, nil
}

func (s *SQLiteEventStore) InsertEvents(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	query, args, err := insertEventsSql(s.dialect, events)
	if err != nil {
		return errors.WithStack(err)
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "inserting events")
	}
	return errors.WithStack(tx.Commit())
}

func (s *SQLiteEventStore) GetEvents(ctx context.Context, page int, perPage int) ([]*Event, error) {
	query, err := selectEventsSql(s.dialect, page, perPage)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := s.db.QueryContext(ctx, query)
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

func (s *SQLiteEventStore) Check() error {
	var one int
	if err := s.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return errors.Wrap(err, "sqlite health check failed")
	}
	return nil
}

func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}
