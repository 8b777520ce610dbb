package ingestion

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

const eventsTable = "events"

var eventColumns = []interface{}{"id", "event_type", "timestamp", "metadata"}

func insertEventsSql(dialect goqu.DialectWrapper, events []*Event) (string, []interface{}, error) {
	rows := make([]interface{}, len(events))
	for i, e := range events {
		rows[i] = goqu.Record{
			"event_type": e.EventType,
			"timestamp":  e.Timestamp,
			"metadata":   string(e.Metadata),
		}
	}
	return dialect.Insert(eventsTable).Rows(rows...).Prepared(true).ToSQL()
}

// selectEventsSql pages through events by id. Page numbers start at 1.
func selectEventsSql(dialect goqu.DialectWrapper, page int, perPage int) (string, error) {
	sql, _, err := dialect.
		From(eventsTable).
		Select(eventColumns...).
		Order(goqu.C("id").Asc()).
		Limit(uint(perPage)).
		Offset(uint((page - 1) * perPage)).
		ToSQL()
	return sql, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event    Event
		metadata []byte
	)
	if err := row.Scan(&event.Id, &event.EventType, &event.Timestamp, &metadata); err != nil {
		return nil, err
	}
	event.Metadata = metadata
	return &event, nil
}
