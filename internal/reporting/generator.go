package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/storage"
	"econ-clock/internal/timeresolve"
)

// Generator produces day agendas from the event cache.
type Generator struct {
	events      eventcache.Querier
	annotations storage.AnnotationStore
	now         clock.Clock
	log         zerolog.Logger
}

// NewGenerator creates a generator. annotations may be nil; now defaults to
// the system clock.
func NewGenerator(events eventcache.Querier, annotations storage.AnnotationStore, now clock.Clock, log zerolog.Logger) *Generator {
	if now == nil {
		now = clock.System
	}
	return &Generator{events: events, annotations: annotations, now: now, log: log}
}

// Generate builds the agenda of the local day containing atMs.
func (g *Generator) Generate(ctx context.Context, timezone string, atMs int64, filters domain.Filters) (*Report, error) {
	if _, err := timeresolve.Location(timezone); err != nil {
		return nil, fmt.Errorf("timezone %q: %w", timezone, err)
	}

	q := eventcache.DayQuery(timezone, atMs, filters)
	res := g.events.Query(ctx, q)
	if res.Err != nil {
		return nil, fmt.Errorf("query day %s: %w", q.DayKey(), res.Err)
	}

	ann := map[string]storage.Annotation{}
	if g.annotations != nil {
		snap, err := g.annotations.Snapshot(ctx)
		if err != nil {
			g.log.Warn().Err(err).Msg("annotations unavailable, report will omit them")
		} else {
			ann = snap
		}
	}

	now := g.now()
	r := &Report{
		GeneratedAt: time.UnixMilli(now).UTC(),
		Timezone:    timezone,
		Day:         q.DayKey(),
		Filters:     q.Filters,
		Summary:     Summary{ByImpact: make(map[domain.Impact]int)},
		Rows:        make([]AgendaRow, 0, len(res.Events)),
	}

	currencies := make(map[string]struct{})
	for _, e := range res.Events {
		lt, ok := timeresolve.Resolve(timezone, e.EpochMs)
		if !ok {
			continue
		}
		a := ann[e.Key]
		row := AgendaRow{
			LocalTime: lt.String(),
			EpochMs:   e.EpochMs,
			Key:       e.Key,
			Currency:  e.Currency,
			Impact:    e.Impact,
			Title:     e.Title,
			Actual:    e.Actual,
			Forecast:  e.Forecast,
			Previous:  e.Previous,
			Favorite:  a.Favorite,
			Note:      a.Note,
			Released:  e.EpochMs <= now,
		}
		r.Rows = append(r.Rows, row)

		r.Summary.Total++
		r.Summary.ByImpact[e.Impact]++
		currencies[e.Currency] = struct{}{}
		if row.Favorite {
			r.Summary.Favorites++
		}
		if row.Note != "" {
			r.Summary.WithNotes++
		}
		if row.Released {
			r.Summary.Released++
		}
	}

	for c := range currencies {
		r.Summary.Currencies = append(r.Summary.Currencies, c)
	}
	sort.Strings(r.Summary.Currencies)

	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.EpochMs != b.EpochMs {
			return a.EpochMs < b.EpochMs
		}
		if pa, pb := a.Impact.Priority(), b.Impact.Priority(); pa != pb {
			return pa > pb
		}
		return a.Key < b.Key
	})

	return r, nil
}
