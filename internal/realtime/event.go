package realtime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAny    EventType = "*"
)

// ErrInvalidFilter indicates an unusable subscription filter.
var ErrInvalidFilter = errors.New("realtime: invalid filter")

// ChangeEvent describes a committed row change.
type ChangeEvent struct {
	Table           string         `json:"table"`
	Type            EventType      `json:"type"`
	New             map[string]any `json:"new"`
	Old             map[string]any `json:"old,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// Filter selects change events by table, event type and an optional
// column equality predicate.
type Filter struct {
	Table  string
	Event  EventType
	Column string
	Value  string
}

// ParseFilter validates raw subscription parameters.
func ParseFilter(table, event, column, value string) (Filter, error) {
	filter := Filter{
		Table:  strings.TrimSpace(table),
		Event:  EventType(strings.ToUpper(strings.TrimSpace(event))),
		Column: strings.TrimSpace(column),
		Value:  value,
	}
	if filter.Table == "" {
		return Filter{}, fmt.Errorf("%w: table is required", ErrInvalidFilter)
	}
	switch filter.Event {
	case "":
		filter.Event = EventAny
	case EventInsert, EventUpdate, EventDelete, EventAny:
	default:
		return Filter{}, fmt.Errorf("%w: unknown event %q", ErrInvalidFilter, event)
	}
	return filter, nil
}

// Matches reports whether event satisfies the filter. The column predicate is
// evaluated against the new row, or the old row for deletes.
func (f Filter) Matches(event ChangeEvent) bool {
	if f.Table != event.Table {
		return false
	}
	if f.Event != "" && f.Event != EventAny && f.Event != event.Type {
		return false
	}
	if f.Column == "" {
		return true
	}
	row := event.New
	if event.Type == EventDelete {
		row = event.Old
	}
	value, ok := row[f.Column]
	if !ok || value == nil {
		return false
	}
	return fmt.Sprint(value) == f.Value
}
