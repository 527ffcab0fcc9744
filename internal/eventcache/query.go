// Package eventcache serves date-range event queries through a chain of
// cache tiers in front of an authoritative source.
package eventcache

import (
	"time"

	"econ-clock/internal/domain"
	"econ-clock/internal/idhash"
	"econ-clock/internal/timeresolve"
)

// Query is a half-open range [Start, End) of events for a viewer timezone.
type Query struct {
	Start    time.Time
	End      time.Time
	Timezone string
	Filters  domain.Filters
}

// StartMs returns Start in epoch milliseconds.
func (q Query) StartMs() int64 { return q.Start.UnixMilli() }

// EndMs returns End in epoch milliseconds.
func (q Query) EndMs() int64 { return q.End.UnixMilli() }

// Signature is the normalized cache key of the query.
func (q Query) Signature() string {
	return idhash.ComputeQueryKey(q.StartMs(), q.EndMs(), q.Filters.Signature(), q.Timezone)
}

// DayKey is the local day of Start in the query timezone.
func (q Query) DayKey() string {
	return timeresolve.DayKey(q.Timezone, q.StartMs())
}

// Tags label cache entries for invalidation by timezone and by day.
func (q Query) Tags() []string {
	return []string{TimezoneTag(q.Timezone), DayTag(q.Timezone, q.DayKey())}
}

// Valid reports whether the range is non-empty.
func (q Query) Valid() bool {
	return q.End.After(q.Start)
}

// DayQuery builds the query for the local calendar day containing nowMs.
func DayQuery(timezone string, nowMs int64, filters domain.Filters) Query {
	start, end := timeresolve.DayBounds(timezone, nowMs)
	return Query{Start: start, End: end, Timezone: timezone, Filters: filters.Normalize()}
}

// TimezoneTag is the hot cache tag of every entry queried in timezone.
func TimezoneTag(timezone string) string {
	return "tz:" + timezone
}

// DayTag is the hot cache tag of entries starting on dayKey in timezone.
func DayTag(timezone, dayKey string) string {
	return "day:" + timezone + ":" + dayKey
}

// trim keeps events inside [start, end).
func trim(events []domain.Event, start, end int64) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.EpochMs >= start && e.EpochMs < end {
			out = append(out, e)
		}
	}
	return out
}
