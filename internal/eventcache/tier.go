package eventcache

import (
	"context"
	"time"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
)

// Tier is one layer of the read path.
type Tier interface {
	Name() string

	// Get returns the events of q. ok is false on a miss.
	Get(ctx context.Context, q Query) (events []domain.Event, ok bool, err error)

	// Set stores the events of q. Tiers that cannot store are no-ops.
	Set(ctx context.Context, q Query, events []domain.Event) error
}

// HotTier is the in-memory TTL tier.
type HotTier struct {
	cache storage.HotCache
}

// NewHotTier wraps a hot cache.
func NewHotTier(cache storage.HotCache) *HotTier {
	return &HotTier{cache: cache}
}

// Name returns "hot".
func (t *HotTier) Name() string { return "hot" }

// Get looks up the query signature.
func (t *HotTier) Get(_ context.Context, q Query) ([]domain.Event, bool, error) {
	events, ok := t.cache.Get(q.Signature())
	return events, ok, nil
}

// Set stores the result tagged with the query timezone and day.
func (t *HotTier) Set(_ context.Context, q Query, events []domain.Event) error {
	t.cache.Set(q.Signature(), events, q.Tags()...)
	observability.UpdateHotEntries(t.cache.Len())
	return nil
}

// PersistentTier is the structured tier that survives restarts.
type PersistentTier struct {
	cache storage.RangeCache
	ttl   time.Duration
	now   clock.Clock
}

// NewPersistentTier wraps a range cache. Records expire after ttl.
func NewPersistentTier(cache storage.RangeCache, ttl time.Duration, now clock.Clock) *PersistentTier {
	if now == nil {
		now = clock.System
	}
	return &PersistentTier{cache: cache, ttl: ttl, now: now}
}

// Name returns "persistent".
func (t *PersistentTier) Name() string { return "persistent" }

// Get returns the exact range record, or on a miss the slice of a fresh
// record of the same timezone and filters that contains q.
func (t *PersistentTier) Get(ctx context.Context, q Query) ([]domain.Event, bool, error) {
	events, ok, err := t.cache.GetRange(ctx, q.Signature())
	if err != nil || ok {
		return events, ok, err
	}
	return t.cache.GetCovering(ctx, q.Timezone, q.Filters.Signature(), q.StartMs(), q.EndMs())
}

// Set stores the result as a range record.
func (t *PersistentTier) Set(ctx context.Context, q Query, events []domain.Event) error {
	rec := storage.RangeRecord{
		Key:      q.Signature(),
		Start:    q.StartMs(),
		End:      q.EndMs(),
		Timezone: q.Timezone,
		DayKey:   q.DayKey(),
		Filters:  q.Filters.Signature(),
	}
	if t.ttl > 0 {
		rec.ExpiresAt = time.UnixMilli(t.now()).Add(t.ttl)
	}
	return t.cache.PutRange(ctx, rec, events)
}

// SourceTier adapts the authoritative source. Every Get is a hit or an
// error.
type SourceTier struct {
	source storage.EventSource
}

// NewSourceTier wraps an authoritative source.
func NewSourceTier(source storage.EventSource) *SourceTier {
	return &SourceTier{source: source}
}

// Name returns the source name.
func (t *SourceTier) Name() string { return "source:" + t.source.Name() }

// Get fetches from the source.
func (t *SourceTier) Get(ctx context.Context, q Query) ([]domain.Event, bool, error) {
	began := time.Now()
	events, err := t.source.GetByTimeRange(ctx, q.StartMs(), q.EndMs(), q.Filters)
	observability.RecordSourceFetch(t.source.Name(), time.Since(began).Seconds(), err)
	if err != nil {
		return nil, false, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, true, nil
}

// Set is a no-op: the source is read-only here.
func (t *SourceTier) Set(context.Context, Query, []domain.Event) error { return nil }
