package eventcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
	"econ-clock/internal/timeresolve"
)

// ErrInvalidRange is returned for queries whose end is not after start.
var ErrInvalidRange = errors.New("eventcache: empty or inverted range")

// Result is what readers of the adapter observe.
type Result struct {
	Events  []domain.Event `json:"events"`
	Loading bool           `json:"loading"`
	Err     error          `json:"-"`
}

// Invalidation describes why Observe dropped cache entries.
type Invalidation string

const (
	InvalidationNone     Invalidation = "none"
	InvalidationTimezone Invalidation = "timezone"
	InvalidationRollover Invalidation = "rollover"
)

// Options configures an Adapter. Hot and Persistent are optional.
type Options struct {
	Hot           storage.HotCache
	Persistent    storage.RangeCache
	PersistentTTL time.Duration
	Source        storage.EventSource
	Clock         clock.Clock
	Logger        zerolog.Logger
}

// Adapter answers range queries through hot, persistent, batching and
// source tiers, writing lower-tier hits back into the faster tiers.
type Adapter struct {
	tiers      []Tier
	hot        storage.HotCache
	persistent storage.RangeCache
	log        zerolog.Logger

	mu     sync.Mutex
	lastTZ string
	lastDK string
}

// NewAdapter builds the tier chain.
func NewAdapter(opts Options) *Adapter {
	a := &Adapter{
		hot:        opts.Hot,
		persistent: opts.Persistent,
		log:        opts.Logger.With().Str("component", "eventcache").Logger(),
	}
	if opts.Hot != nil {
		a.tiers = append(a.tiers, NewHotTier(opts.Hot))
	}
	if opts.Persistent != nil {
		a.tiers = append(a.tiers, NewPersistentTier(opts.Persistent, opts.PersistentTTL, opts.Clock))
	}
	a.tiers = append(a.tiers, NewBatchingTier(NewSourceTier(opts.Source)))
	return a
}

// NewAdapterWithTiers builds an adapter over an explicit chain. The last
// tier is treated as authoritative.
func NewAdapterWithTiers(log zerolog.Logger, tiers ...Tier) *Adapter {
	return &Adapter{tiers: tiers, log: log}
}

// Tiers returns the names of the chain, fastest first.
func (a *Adapter) Tiers() []string {
	names := make([]string, len(a.tiers))
	for i, t := range a.tiers {
		names[i] = t.Name()
	}
	return names
}

// Fetch returns the events of q from the fastest tier that has them.
// Cache tier failures are logged and treated as misses; only the last
// tier's error is returned.
func (a *Adapter) Fetch(ctx context.Context, q Query) ([]domain.Event, error) {
	if !q.Valid() {
		return nil, ErrInvalidRange
	}
	q.Filters = q.Filters.Normalize()

	var lastErr error
	for i, tier := range a.tiers {
		events, ok, err := tier.Get(ctx, q)
		if err != nil {
			observability.RecordCacheError(tier.Name(), "get")
			lastErr = err
			if i == len(a.tiers)-1 {
				return nil, err
			}
			a.log.Warn().Err(err).Str("tier", tier.Name()).Msg("tier read failed, falling through")
			continue
		}
		if !ok {
			observability.RecordCacheMiss(tier.Name())
			continue
		}
		observability.RecordCacheHit(tier.Name())
		a.writeBack(ctx, q, events, i)
		return events, nil
	}
	if lastErr == nil {
		lastErr = errors.New("eventcache: no tier answered")
	}
	return nil, lastErr
}

// writeBack stores events in every tier faster than hit.
func (a *Adapter) writeBack(ctx context.Context, q Query, events []domain.Event, hit int) {
	for i := hit - 1; i >= 0; i-- {
		tier := a.tiers[i]
		if err := tier.Set(ctx, q, events); err != nil {
			observability.RecordCacheError(tier.Name(), "set")
			a.log.Warn().Err(err).Str("tier", tier.Name()).Msg("write-back failed")
		}
	}
}

// Query is Fetch with soft failure: errors yield an empty, non-loading
// result carrying the error.
func (a *Adapter) Query(ctx context.Context, q Query) Result {
	events, err := a.Fetch(ctx, q)
	if err != nil {
		a.log.Warn().Err(err).
			Time("start", q.Start).
			Time("end", q.End).
			Str("tz", q.Timezone).
			Msg("query failed")
		return Result{Events: []domain.Event{}, Err: err}
	}
	return Result{Events: events}
}

// QueryDay queries the local day containing nowMs.
func (a *Adapter) QueryDay(ctx context.Context, timezone string, nowMs int64, filters domain.Filters) Result {
	return a.Query(ctx, DayQuery(timezone, nowMs, filters))
}

// Observe records the viewer timezone and local day. When the timezone
// changes every entry of the old timezone is dropped; when the local day
// rolls over entries of the previous day are dropped.
func (a *Adapter) Observe(ctx context.Context, timezone string, nowMs int64) Invalidation {
	day := timeresolve.DayKey(timezone, nowMs)

	a.mu.Lock()
	prevTZ, prevDK := a.lastTZ, a.lastDK
	a.lastTZ, a.lastDK = timezone, day
	a.mu.Unlock()

	switch {
	case prevTZ == "":
		return InvalidationNone
	case prevTZ != timezone:
		n := a.invalidate(ctx, TimezoneTag(prevTZ), func(c storage.RangeCache) (int, error) {
			return c.InvalidateTimezone(ctx, prevTZ)
		})
		observability.RecordInvalidation(string(InvalidationTimezone), n)
		a.log.Info().Str("from", prevTZ).Str("to", timezone).Int("entries", n).Msg("timezone changed, cache invalidated")
		return InvalidationTimezone
	case prevDK != day:
		n := a.invalidate(ctx, DayTag(prevTZ, prevDK), func(c storage.RangeCache) (int, error) {
			return c.InvalidateDay(ctx, prevTZ, prevDK)
		})
		observability.RecordInvalidation(string(InvalidationRollover), n)
		a.log.Info().Str("from", prevDK).Str("to", day).Int("entries", n).Msg("day rolled over, cache invalidated")
		return InvalidationRollover
	}
	return InvalidationNone
}

func (a *Adapter) invalidate(ctx context.Context, tag string, persistent func(storage.RangeCache) (int, error)) int {
	var n int
	if a.hot != nil {
		n += a.hot.InvalidateTag(tag)
		observability.UpdateHotEntries(a.hot.Len())
	}
	if a.persistent != nil && ctx.Err() == nil {
		m, err := persistent(a.persistent)
		if err != nil {
			observability.RecordCacheError("persistent", "invalidate")
			a.log.Warn().Err(err).Str("tag", tag).Msg("persistent invalidation failed")
		}
		n += m
	}
	return n
}
