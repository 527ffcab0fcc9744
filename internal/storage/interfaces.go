package storage

import (
	"context"
	"time"

	"econ-clock/internal/domain"
)

// EventSource is the authoritative read contract for calendar events.
type EventSource interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// GetByTimeRange retrieves events with start <= epoch_ms < end that pass
	// the filter, ordered by epoch_ms ASC, key ASC.
	GetByTimeRange(ctx context.Context, start, end int64, filters domain.Filters) ([]domain.Event, error)
}

// EventStore is an EventSource that also accepts writes.
type EventStore interface {
	EventSource

	// Insert adds a new event. Returns ErrDuplicateKey if the key exists.
	Insert(ctx context.Context, e domain.Event) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []domain.Event) error

	// Upsert inserts or replaces events by key. Used when a source revises
	// actual/forecast values after release.
	Upsert(ctx context.Context, events []domain.Event) error

	// GetByKey retrieves an event by key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, key string) (domain.Event, error)
}

// HotCache is a short-lived in-process cache of query results.
// Entries carry tags (timezone, day key) for targeted invalidation.
type HotCache interface {
	// Get returns a fresh entry. Expired entries are reported as misses.
	Get(key string) ([]domain.Event, bool)

	// Set stores an entry with the cache TTL. Last writer wins.
	Set(key string, events []domain.Event, tags ...string)

	// InvalidateTag removes every entry carrying tag and returns the count.
	InvalidateTag(tag string) int

	// Purge removes expired entries and returns the count.
	Purge() int

	// Len returns the number of stored entries, fresh or not.
	Len() int
}

// RangeRecord describes a cached range query result.
type RangeRecord struct {
	Key       string // query signature
	Start     int64  // epoch ms, inclusive
	End       int64  // epoch ms, exclusive
	Timezone  string
	DayKey    string // local day of Start, used for rollover invalidation
	Filters   string // filter signature
	ExpiresAt time.Time
}

// RangeCache is a persistent structured cache of range query results.
type RangeCache interface {
	// GetRange returns the events of a fresh range record.
	// ok is false when the record is missing or expired.
	GetRange(ctx context.Context, key string) (events []domain.Event, ok bool, err error)

	// PutRange stores the record and its events, replacing any previous
	// record with the same key.
	PutRange(ctx context.Context, rec RangeRecord, events []domain.Event) error

	// GetCovering returns the events in [start, end) of a fresh record with
	// the same timezone and filter signature whose range contains it.
	GetCovering(ctx context.Context, timezone, filters string, start, end int64) (events []domain.Event, ok bool, err error)

	// InvalidateDay drops records of timezone whose day key equals dayKey.
	InvalidateDay(ctx context.Context, timezone, dayKey string) (int, error)

	// InvalidateTimezone drops every record of timezone.
	InvalidateTimezone(ctx context.Context, timezone string) (int, error)

	// DeleteExpired drops expired records and orphaned events.
	DeleteExpired(ctx context.Context) (int, error)
}
