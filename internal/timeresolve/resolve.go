// Package timeresolve converts absolute instants into timezone-local wall
// clock parts and calendar days.
package timeresolve

import (
	"fmt"
	"sync"
	"time"
)

// LocalTime is the wall-clock hour and minute of an instant in a timezone.
type LocalTime struct {
	Hour   int
	Minute int
}

// TotalMinutes returns minutes since local midnight.
func (t LocalTime) TotalMinutes() int {
	return t.Hour*60 + t.Minute
}

// String formats the time as HH:MM.
func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var locations sync.Map // map[string]*time.Location

// Location loads and caches an IANA timezone. An empty name is UTC.
func Location(name string) (*time.Location, error) {
	if cached, ok := locations.Load(name); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}

// Resolve returns the wall-clock hour and minute of epochMs in timezone.
// ok is false when the zone is unknown or the instant is not positive;
// callers skip such events.
func Resolve(timezone string, epochMs int64) (LocalTime, bool) {
	if epochMs <= 0 {
		return LocalTime{}, false
	}
	loc, err := Location(timezone)
	if err != nil {
		return LocalTime{}, false
	}
	t := time.UnixMilli(epochMs).In(loc)
	return LocalTime{Hour: t.Hour(), Minute: t.Minute()}, true
}

// DayKey returns the local calendar date (YYYY-MM-DD) of epochMs in
// timezone. An unknown zone falls back to UTC.
func DayKey(timezone string, epochMs int64) string {
	loc, err := Location(timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.UnixMilli(epochMs).In(loc).Format(time.DateOnly)
}

// DayBounds returns [start, end) of the local calendar day containing
// epochMs. The end is the next local midnight, so DST days are 23 or 25
// hours long.
func DayBounds(timezone string, epochMs int64) (start, end time.Time) {
	loc, err := Location(timezone)
	if err != nil {
		loc = time.UTC
	}
	t := time.UnixMilli(epochMs).In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}
