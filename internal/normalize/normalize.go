// Package normalize turns raw event records from the log collector into
// time-ordered model.RawEvent values.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pable/go-hll-metrics/internal/model"
)

var (
	ErrDecode       = errors.New("decode event batch")
	ErrMissingField = errors.New("missing required field")
	ErrBadTimestamp = errors.New("invalid timestamp")
)

// Record is one event as delivered by the acquisition side. Every field but
// ID may be null or missing.
type Record struct {
	ID           *int64  `json:"id"`
	CreationTime *string `json:"creation_time"`
	EventTime    *string `json:"event_time"`
	Type         *string `json:"type"`
	Player1ID    *string `json:"player1_id"`
	Player1Name  *string `json:"player1_name"`
	Player2ID    *string `json:"player2_id"`
	Player2Name  *string `json:"player2_name"`
	Weapon       *string `json:"weapon"`
	Content      *string `json:"content"`
	Raw          *string `json:"raw"`
	Server       *string `json:"server"`
}

// RecordError describes a single record rejected during normalization.
type RecordError struct {
	Index int
	ID    int64
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (id=%d): %v", e.Index, e.ID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Decode reads one batch (a JSON array of records) and normalizes it.
// A malformed document fails the whole batch; individually invalid records
// are dropped and reported in the returned slice.
func Decode(r io.Reader) ([]model.RawEvent, []RecordError, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	events, rejected := Normalize(records)
	return events, rejected, nil
}

// Normalize validates and converts records, returning events sorted by time.
func Normalize(records []Record) ([]model.RawEvent, []RecordError) {
	events := make([]model.RawEvent, 0, len(records))
	var rejected []RecordError
	for i, rec := range records {
		ev, err := convert(rec)
		if err != nil {
			var id int64
			if rec.ID != nil {
				id = *rec.ID
			}
			rejected = append(rejected, RecordError{Index: i, ID: id, Err: err})
			continue
		}
		events = append(events, ev)
	}
	Sort(events)
	return events, rejected
}

// Sort orders events by event time, breaking ties by id.
func Sort(events []model.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].EventTime.Equal(events[j].EventTime) {
			return events[i].EventTime.Before(events[j].EventTime)
		}
		return events[i].ID < events[j].ID
	})
}

func convert(rec Record) (model.RawEvent, error) {
	if rec.ID == nil {
		return model.RawEvent{}, fmt.Errorf("%w: id", ErrMissingField)
	}
	typ := strings.TrimSpace(deref(rec.Type))
	if typ == "" {
		return model.RawEvent{}, fmt.Errorf("%w: type", ErrMissingField)
	}
	server := strings.TrimSpace(deref(rec.Server))
	if server == "" {
		return model.RawEvent{}, fmt.Errorf("%w: server", ErrMissingField)
	}
	if rec.EventTime == nil {
		return model.RawEvent{}, fmt.Errorf("%w: event_time", ErrMissingField)
	}
	eventTime, err := ParseTime(*rec.EventTime)
	if err != nil {
		return model.RawEvent{}, err
	}

	ev := model.RawEvent{
		ID:        *rec.ID,
		EventTime: eventTime,
		Type:      model.EventType(typ),
		Player1:   actor(rec.Player1ID, rec.Player1Name),
		Player2:   actor(rec.Player2ID, rec.Player2Name),
		Weapon:    optional(rec.Weapon),
		Content:   deref(rec.Content),
		Raw:       deref(rec.Raw),
		Server:    server,
	}
	if rec.CreationTime != nil && *rec.CreationTime != "" {
		ct, err := ParseTime(*rec.CreationTime)
		if err != nil {
			return model.RawEvent{}, err
		}
		ev.CreationTime = ct
	}
	return ev, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses an ISO-8601 timestamp. Timestamps without an offset are
// taken as UTC. The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

func actor(id, name *string) *model.Actor {
	pid := strings.TrimSpace(deref(id))
	if pid == "" {
		return nil
	}
	return &model.Actor{ID: pid, Name: deref(name)}
}

func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
