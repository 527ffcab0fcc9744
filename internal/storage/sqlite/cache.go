// Package sqlite implements the persistent cache tier on SQLite.
// Events are stored once as msgpack payloads; range records reference them
// through range_events.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

//go:embed schema.sql
var schema string

// DefaultRangeTTL is how long a cached range stays fresh.
const DefaultRangeTTL = 6 * time.Hour

// Cache implements storage.RangeCache.
type Cache struct {
	db  *sql.DB
	now clock.Clock
}

// Open opens (or creates) the cache database at path. Use ":memory:" for an
// ephemeral cache. A nil clock uses the system clock.
func Open(path string, now clock.Clock) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory:
	// databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if now == nil {
		now = clock.System
	}
	return &Cache{db: db, now: now}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Compile-time interface check.
var _ storage.RangeCache = (*Cache)(nil)

// GetRange returns the events of a fresh range record.
func (c *Cache) GetRange(ctx context.Context, key string) ([]domain.Event, bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT event_count FROM range_records WHERE range_key = ? AND expires_at > ?",
		key, c.now(),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get range record: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT e.payload
		FROM range_events r
		JOIN cached_events e ON e.event_key = r.event_key
		WHERE r.range_key = ?
		ORDER BY e.epoch_ms ASC, e.event_key ASC
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("get range events: %w", err)
	}
	defer rows.Close()

	events, err := decodeRows(rows)
	if err != nil {
		return nil, false, err
	}
	// A record whose events were partially evicted is a miss.
	if len(events) != count {
		return nil, false, nil
	}
	return events, true, nil
}

// PutRange stores the record and its events in one transaction.
func (c *Cache) PutRange(ctx context.Context, rec storage.RangeRecord, events []domain.Event) error {
	if rec.Key == "" {
		return storage.ErrInvalidInput
	}

	now := c.now()
	expiresAt := rec.ExpiresAt.UnixMilli()
	if rec.ExpiresAt.IsZero() {
		expiresAt = now + DefaultRangeTTL.Milliseconds()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM range_events WHERE range_key = ?", rec.Key); err != nil {
		return fmt.Errorf("clear range events: %w", err)
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}

		payload, err := msgpack.Marshal(&e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Key, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO cached_events (event_key, epoch_ms, payload, updated_at) VALUES (?, ?, ?, ?)",
			e.Key, e.EpochMs, payload, now,
		)
		if err != nil {
			return fmt.Errorf("store event %s: %w", e.Key, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO range_events (range_key, event_key) VALUES (?, ?)",
			rec.Key, e.Key,
		)
		if err != nil {
			return fmt.Errorf("link event %s: %w", e.Key, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO range_records (range_key, start_ms, end_ms, timezone, day_key, filters, event_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Key, rec.Start, rec.End, rec.Timezone, rec.DayKey, rec.Filters, len(seen), expiresAt)
	if err != nil {
		return fmt.Errorf("store range record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetCovering answers a sub-range from the freshest complete record of the
// same timezone and filter signature whose range contains [start, end).
// Only events linked to that record are scanned, by epoch.
func (c *Cache) GetCovering(ctx context.Context, timezone, filters string, start, end int64) ([]domain.Event, bool, error) {
	var (
		key   string
		count int
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT range_key, event_count FROM range_records
		WHERE timezone = ? AND filters = ? AND start_ms <= ? AND end_ms >= ? AND expires_at > ?
		ORDER BY expires_at DESC
		LIMIT 1
	`, timezone, filters, start, end, c.now()).Scan(&key, &count)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find covering record: %w", err)
	}

	var linked int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM range_events r
		JOIN cached_events e ON e.event_key = r.event_key
		WHERE r.range_key = ?
	`, key).Scan(&linked)
	if err != nil {
		return nil, false, fmt.Errorf("count covering events: %w", err)
	}
	if linked != count {
		return nil, false, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT e.payload
		FROM range_events r
		JOIN cached_events e ON e.event_key = r.event_key
		WHERE r.range_key = ? AND e.epoch_ms >= ? AND e.epoch_ms < ?
		ORDER BY e.epoch_ms ASC, e.event_key ASC
	`, key, start, end)
	if err != nil {
		return nil, false, fmt.Errorf("scan covering events: %w", err)
	}
	defer rows.Close()

	events, err := decodeRows(rows)
	if err != nil {
		return nil, false, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, true, nil
}

// InvalidateDay drops records of timezone for dayKey.
func (c *Cache) InvalidateDay(ctx context.Context, timezone, dayKey string) (int, error) {
	return c.deleteRecords(ctx, "timezone = ? AND day_key = ?", timezone, dayKey)
}

// InvalidateTimezone drops every record of timezone.
func (c *Cache) InvalidateTimezone(ctx context.Context, timezone string) (int, error) {
	return c.deleteRecords(ctx, "timezone = ?", timezone)
}

// DeleteExpired drops expired records and events no record references.
func (c *Cache) DeleteExpired(ctx context.Context) (int, error) {
	n, err := c.deleteRecords(ctx, "expires_at <= ?", c.now())
	if err != nil {
		return n, err
	}
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM cached_events WHERE event_key NOT IN (SELECT event_key FROM range_events)",
	); err != nil {
		return n, fmt.Errorf("delete orphaned events: %w", err)
	}
	return n, nil
}

// Stats returns the number of range records and cached events.
func (c *Cache) Stats(ctx context.Context) (records, events int, err error) {
	err = c.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM range_records), (SELECT COUNT(*) FROM cached_events)",
	).Scan(&records, &events)
	if err != nil {
		return 0, 0, fmt.Errorf("cache stats: %w", err)
	}
	return records, events, nil
}

func (c *Cache) deleteRecords(ctx context.Context, where string, args ...any) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM range_events WHERE range_key IN (SELECT range_key FROM range_records WHERE "+where+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete range events: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM range_records WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete range records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(n), nil
}

func decodeRows(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var e domain.Event
		if err := msgpack.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payloads: %w", err)
	}
	return events, nil
}
