package eventcache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/timeresolve"
)

// BatchingTier coalesces concurrent requests in front of the next tier.
// Ranges are widened to whole local days so overlapping queries of the same
// days share one upstream call; each caller receives its own range.
type BatchingTier struct {
	next  Tier
	group singleflight.Group
}

// NewBatchingTier wraps next.
func NewBatchingTier(next Tier) *BatchingTier {
	return &BatchingTier{next: next}
}

// Name returns "batching".
func (t *BatchingTier) Name() string { return "batching" }

// Get fetches the widened range once for all concurrent callers. The shared
// call is detached from any single caller's cancellation; a cancelled caller
// stops waiting and the others still receive the result.
func (t *BatchingTier) Get(ctx context.Context, q Query) ([]domain.Event, bool, error) {
	wide := widen(q)
	key := fmt.Sprintf("%d-%d|%s|%s", wide.StartMs(), wide.EndMs(), wide.Timezone, wide.Filters.Signature())

	shared := context.WithoutCancel(ctx)
	ch := t.group.DoChan(key, func() (any, error) {
		events, ok, err := t.next.Get(shared, wide)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return events, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	if res.Shared {
		observability.RecordCoalesced()
	}
	if res.Err != nil {
		return nil, false, res.Err
	}
	if res.Val == nil {
		return nil, false, nil
	}
	return trim(res.Val.([]domain.Event), q.StartMs(), q.EndMs()), true, nil
}

// Set is a no-op: in-flight results are not retained.
func (t *BatchingTier) Set(context.Context, Query, []domain.Event) error { return nil }

// widen aligns q to local day boundaries of its timezone.
func widen(q Query) Query {
	start, _ := timeresolve.DayBounds(q.Timezone, q.StartMs())
	last := q.End.Add(-time.Millisecond)
	if last.Before(q.Start) {
		last = q.Start
	}
	_, end := timeresolve.DayBounds(q.Timezone, last.UnixMilli())
	return Query{Start: start, End: end, Timezone: q.Timezone, Filters: q.Filters}
}
