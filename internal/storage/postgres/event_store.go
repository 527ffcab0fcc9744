package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventSQL = `
	INSERT INTO economic_events (
		event_key, source_id, title, currency, impact, epoch_ms, source, actual, forecast, previous
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const selectEventColumns = `
	SELECT event_key, source_id, title, currency, impact, epoch_ms, source, actual, forecast, previous
	FROM economic_events
`

// Name identifies the store.
func (s *EventStore) Name() string {
	return "postgres"
}

// Insert adds a new event. Returns ErrDuplicateKey if the key exists.
func (s *EventStore) Insert(ctx context.Context, e domain.Event) error {
	if e.Key == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertEventSQL, eventArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertEventSQL, eventArgs(e)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Upsert inserts or replaces events by key in one batch.
func (s *EventStore) Upsert(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := insertEventSQL + `
		ON CONFLICT (event_key) DO UPDATE
		SET source_id = EXCLUDED.source_id,
		    title = EXCLUDED.title,
		    currency = EXCLUDED.currency,
		    impact = EXCLUDED.impact,
		    epoch_ms = EXCLUDED.epoch_ms,
		    source = EXCLUDED.source,
		    actual = EXCLUDED.actual,
		    forecast = EXCLUDED.forecast,
		    previous = EXCLUDED.previous,
		    updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query, eventArgs(e)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}
	}
	return nil
}

// GetByKey retrieves an event by key. Returns ErrNotFound if not exists.
func (s *EventStore) GetByKey(ctx context.Context, key string) (domain.Event, error) {
	row := s.pool.QueryRow(ctx, selectEventColumns+` WHERE event_key = $1`, key)

	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return domain.Event{}, storage.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("get event by key: %w", err)
	}
	return e, nil
}

// GetByTimeRange retrieves events with start <= epoch_ms < end that pass the filter.
// Currency, impact and source filters are evaluated by the database.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64, filters domain.Filters) ([]domain.Event, error) {
	f := filters.Normalize()
	currencies := append([]string{}, f.Currencies...)
	impacts := make([]string, 0, len(f.Impacts))
	for _, i := range f.Impacts {
		impacts = append(impacts, string(i))
	}

	query := selectEventColumns + `
		WHERE epoch_ms >= $1 AND epoch_ms < $2
		  AND (cardinality($3::text[]) = 0 OR currency = ANY($3::text[]) OR currency = $4)
		  AND (cardinality($5::text[]) = 0 OR impact = ANY($5::text[]))
		  AND ($6 = '' OR lower(source) = $6)
		ORDER BY epoch_ms ASC, event_key ASC
	`

	began := time.Now()
	rows, err := s.pool.Query(ctx, query, start, end, currencies, domain.CurrencyGlobal, impacts, f.Source)
	observability.RecordDBQuery("postgres", "events_by_time_range", time.Since(began).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func eventArgs(e domain.Event) []any {
	return []any{
		e.Key,
		e.ID,
		e.Title,
		e.Currency,
		string(e.Impact),
		e.EpochMs,
		e.Source,
		e.Actual,
		e.Forecast,
		e.Previous,
	}
}

// scanEvent scans a single row into an Event.
func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var impact string
	err := row.Scan(
		&e.Key, &e.ID, &e.Title, &e.Currency, &impact, &e.EpochMs,
		&e.Source, &e.Actual, &e.Forecast, &e.Previous,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Impact = domain.Impact(impact)
	return e, nil
}

// scanEvents scans multiple rows into Events.
func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
