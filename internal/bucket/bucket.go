// Package bucket groups events into fixed-width local-time windows.
package bucket

import (
	"fmt"
	"sort"

	"econ-clock/internal/domain"
	"econ-clock/internal/timeresolve"
)

const minutesPerDay = 24 * 60

// Key identifies a bucket: a timezone and the label of its window in
// minutes since local midnight.
type Key struct {
	Timezone     string
	LabelMinutes int
}

// Hour returns the label hour.
func (k Key) Hour() int { return k.LabelMinutes / 60 }

// Minute returns the label minute.
func (k Key) Minute() int { return k.LabelMinutes % 60 }

// Label formats the window label as HH:MM.
func (k Key) Label() string {
	return fmt.Sprintf("%02d:%02d", k.Hour(), k.Minute())
}

// String returns TZ@HH:MM.
func (k Key) String() string {
	return k.Timezone + "@" + k.Label()
}

// ValidWindow reports whether window yields labels on a fixed grid: the
// exact minute (<= 1) or a width that divides the day evenly.
func ValidWindow(window int) bool {
	if window <= 1 {
		return window >= 0
	}
	return window <= minutesPerDay && minutesPerDay%window == 0
}

// LabelMinutes maps a local time onto its window label.
//
// window <= 1 keys on the exact minute. Otherwise windows are centered on
// their label: with window=30, 08:00 covers 07:46 through 08:15. Labels wrap
// at midnight, so 23:50 lands in 00:00.
func LabelMinutes(lt timeresolve.LocalTime, window int) int {
	total := lt.TotalMinutes()
	if window <= 1 {
		return total
	}
	half := window / 2
	index := (total + half - 1) / window
	return (index * window) % minutesPerDay
}

// Set is the result of one bucketing pass.
type Set struct {
	Timezone      string
	WindowMinutes int

	keys    []Key
	buckets map[Key][]domain.Event

	// Dropped holds keys of events whose local time could not be resolved.
	Dropped []string
}

// Keys returns bucket keys ordered by label.
func (s Set) Keys() []Key {
	return s.keys
}

// Events returns the events of a bucket ordered by epoch, then key.
func (s Set) Events(k Key) []domain.Event {
	return s.buckets[k]
}

// Len returns the number of buckets.
func (s Set) Len() int {
	return len(s.keys)
}

// Size returns the number of bucketed events.
func (s Set) Size() int {
	n := 0
	for _, evs := range s.buckets {
		n += len(evs)
	}
	return n
}

// Bucket assigns every event with a resolvable time to exactly one bucket.
// Events that cannot be resolved in timezone are skipped and listed in
// Set.Dropped.
func Bucket(events []domain.Event, timezone string, windowMinutes int) Set {
	set := Set{
		Timezone:      timezone,
		WindowMinutes: windowMinutes,
		buckets:       make(map[Key][]domain.Event),
	}

	for _, e := range events {
		lt, ok := timeresolve.Resolve(timezone, e.EpochMs)
		if !ok {
			set.Dropped = append(set.Dropped, e.Key)
			continue
		}
		k := Key{Timezone: timezone, LabelMinutes: LabelMinutes(lt, windowMinutes)}
		if _, exists := set.buckets[k]; !exists {
			set.keys = append(set.keys, k)
		}
		set.buckets[k] = append(set.buckets[k], e)
	}

	sort.Slice(set.keys, func(i, j int) bool {
		return set.keys[i].LabelMinutes < set.keys[j].LabelMinutes
	})
	for k, evs := range set.buckets {
		sort.SliceStable(evs, func(i, j int) bool {
			if evs[i].EpochMs != evs[j].EpochMs {
				return evs[i].EpochMs < evs[j].EpochMs
			}
			return evs[i].Key < evs[j].Key
		})
		set.buckets[k] = evs
	}
	return set
}
