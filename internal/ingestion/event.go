package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
)

var (
	ErrInvalidJson   = errors.New("Invalid JSON")
	ErrMissingFields = errors.New("Missing fields in event")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// Event is a single client event. Metadata is arbitrary JSON and defaults to an empty object.
type Event struct {
	Id        int64           `json:"id"`
	EventType string          `json:"event_type" validate:"max=50"`
	Timestamp string          `json:"timestamp" validate:"max=50"`
	Metadata  json.RawMessage `json:"metadata"`
}

type EventStore interface {
	// InsertEvents persists all events atomically.
	InsertEvents(ctx context.Context, events []*Event) error
	// GetEvents returns the given one based page of events ordered by id.
	GetEvents(ctx context.Context, page int, perPage int) ([]*Event, error)
	Check() error
	Close() error
}

// ParseEvents decodes a request body holding either a single event object or a non-empty list of them.
func ParseEvents(body []byte) ([]*Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrInvalidJson
	}

	var raw []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, ErrInvalidJson
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
			return nil, ErrInvalidJson
		}
		raw = []json.RawMessage{body}
	default:
		return nil, ErrInvalidJson
	}
	if len(raw) == 0 {
		return nil, ErrInvalidJson
	}

	events := make([]*Event, 0, len(raw))
	for _, r := range raw {
		event, err := parseEvent(r)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func parseEvent(raw json.RawMessage) (*Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// not an object
		return nil, ErrMissingFields
	}

	event := &Event{Metadata: json.RawMessage(`{}`)}
	for name, target := range map[string]*string{"event_type": &event.EventType, "timestamp": &event.Timestamp} {
		value, ok := fields[name]
		if !ok {
			return nil, ErrMissingFields
		}
		if err := json.Unmarshal(value, target); err != nil {
			return nil, &batcherrors.ErrInvalidArgument{Name: name, Value: string(value), Message: "must be a string"}
		}
	}
	if metadata, ok := fields["metadata"]; ok && string(metadata) != "null" {
		event.Metadata = metadata
	}

	if err := validate.Struct(event); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fieldErr := validationErrors[0]
			return nil, &batcherrors.ErrInvalidArgument{
				Name:    fieldErr.Field(),
				Value:   fieldErr.Value(),
				Message: "must be at most 50 characters",
			}
		}
		return nil, errors.WithStack(err)
	}
	return event, nil
}
