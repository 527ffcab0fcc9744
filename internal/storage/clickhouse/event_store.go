package clickhouse

import (
	"context"
	"fmt"
	"time"

	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// Rows are versioned; reads use FINAL so the latest revision of a key wins.
type EventStore struct {
	conn *Conn
	now  func() time.Time
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEventColumns = `
	SELECT event_key, source_id, title, currency, impact, epoch_ms, source, actual, forecast, previous
	FROM economic_events FINAL
`

// Name identifies the store.
func (s *EventStore) Name() string {
	return "clickhouse"
}

// Insert adds a new event. Returns ErrDuplicateKey if the key exists.
func (s *EventStore) Insert(ctx context.Context, e domain.Event) error {
	return s.InsertBulk(ctx, []domain.Event{e})
}

// InsertBulk adds multiple events. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.Key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.Key] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, check existing rows first
	for _, e := range events {
		exists, err := s.exists(ctx, e.Key)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	return s.write(ctx, events)
}

// Upsert writes a new revision of each event.
func (s *EventStore) Upsert(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
	}
	return s.write(ctx, events)
}

func (s *EventStore) write(ctx context.Context, events []domain.Event) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO economic_events (
			event_key, source_id, title, currency, impact, epoch_ms, source, actual, forecast, previous, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, e := range events {
		err = batch.Append(
			e.Key, e.ID, e.Title, e.Currency, string(e.Impact), uint64(e.EpochMs),
			e.Source, e.Actual, e.Forecast, e.Previous, version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByKey retrieves an event by key. Returns ErrNotFound if not exists.
func (s *EventStore) GetByKey(ctx context.Context, key string) (domain.Event, error) {
	rows, err := s.conn.Query(ctx, selectEventColumns+` WHERE event_key = ?`, key)
	if err != nil {
		return domain.Event{}, fmt.Errorf("query by key: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return domain.Event{}, err
	}
	if len(events) == 0 {
		return domain.Event{}, storage.ErrNotFound
	}
	return events[0], nil
}

// GetByTimeRange retrieves events with start <= epoch_ms < end that pass the filter.
// The range is evaluated by ClickHouse, the filter in process.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64, filters domain.Filters) ([]domain.Event, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, nil
	}

	query := selectEventColumns + `
		WHERE epoch_ms >= ? AND epoch_ms < ?
		ORDER BY epoch_ms ASC, event_key ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	observability.RecordDBQuery("clickhouse", "events_by_time_range", time.Since(began).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return filters.Normalize().Apply(events), nil
}

// exists checks if an event with the given key exists.
func (s *EventStore) exists(ctx context.Context, key string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM economic_events WHERE event_key = ?`, key).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]domain.Event, error) {
	var events []domain.Event

	for rows.Next() {
		var e domain.Event
		var impact string
		var epochMs uint64

		err := rows.Scan(
			&e.Key, &e.ID, &e.Title, &e.Currency, &impact, &epochMs,
			&e.Source, &e.Actual, &e.Forecast, &e.Previous,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Impact = domain.Impact(impact)
		e.EpochMs = int64(epochMs)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
