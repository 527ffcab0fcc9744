// Package priority classifies events against the current instant and picks
// the representative event of a bucket.
package priority

import (
	"sort"

	"econ-clock/internal/domain"
)

// DefaultNowWindowMs is how long an event stays "now" after it starts.
const DefaultNowWindowMs int64 = 600_000

// Scored is an event with its per-tick classification.
type Scored struct {
	Event      domain.Event `json:"event"`
	IsNow      bool         `json:"is_now"`
	IsPassed   bool         `json:"is_passed"`
	IsNext     bool         `json:"is_next"`
	IsFavorite bool         `json:"is_favorite"`
	HasNotes   bool         `json:"has_notes"`
}

// Active reports whether the event is still relevant: upcoming or now.
func (s Scored) Active() bool {
	return !s.IsPassed || s.IsNow
}

// Scorer classifies events using a fixed now-window.
type Scorer struct {
	NowWindowMs int64
}

// NewScorer returns a Scorer. A non-positive window uses DefaultNowWindowMs.
func NewScorer(nowWindowMs int64) Scorer {
	if nowWindowMs <= 0 {
		nowWindowMs = DefaultNowWindowMs
	}
	return Scorer{NowWindowMs: nowWindowMs}
}

// Score classifies e at nowMs. nextKey is the key of the single global next
// event for this tick (empty when there is none).
func (s Scorer) Score(e domain.Event, nowMs int64, nextKey string, isFavorite, hasNotes bool) Scored {
	elapsed := nowMs - e.EpochMs
	isNow := elapsed >= 0 && elapsed < s.NowWindowMs
	return Scored{
		Event:      e,
		IsNow:      isNow,
		IsPassed:   e.EpochMs < nowMs && !isNow,
		IsNext:     nextKey != "" && e.Key == nextKey,
		IsFavorite: isFavorite,
		HasNotes:   hasNotes,
	}
}

// NextEvent returns the event with the earliest epoch strictly after nowMs.
// Events sharing that epoch are broken by lexical key, so at most one key
// is ever returned.
func NextEvent(events []domain.Event, nowMs int64) (key string, epochMs int64, ok bool) {
	for _, e := range events {
		if !e.HasTime() || e.EpochMs <= nowMs {
			continue
		}
		if !ok || e.EpochMs < epochMs || (e.EpochMs == epochMs && e.Key < key) {
			key, epochMs, ok = e.Key, e.EpochMs, true
		}
	}
	return key, epochMs, ok
}

// Less reports whether a ranks ahead of b. Most significant first:
// not passed, favorite, notes, now, next, impact. Then earliest epoch, then
// key.
func Less(a, b Scored) bool {
	if a.IsPassed != b.IsPassed {
		return !a.IsPassed
	}
	if a.IsFavorite != b.IsFavorite {
		return a.IsFavorite
	}
	if a.HasNotes != b.HasNotes {
		return a.HasNotes
	}
	if a.IsNow != b.IsNow {
		return a.IsNow
	}
	if a.IsNext != b.IsNext {
		return a.IsNext
	}
	if pa, pb := a.Event.Impact.Priority(), b.Event.Impact.Priority(); pa != pb {
		return pa > pb
	}
	if a.Event.EpochMs != b.Event.EpochMs {
		return a.Event.EpochMs < b.Event.EpochMs
	}
	return a.Event.Key < b.Event.Key
}

// Rank returns a copy of scored ordered by Less.
func Rank(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Representative returns the highest ranked event. ok is false for an
// empty slice.
func Representative(scored []Scored) (Scored, bool) {
	if len(scored) == 0 {
		return Scored{}, false
	}
	best := scored[0]
	for _, s := range scored[1:] {
		if Less(s, best) {
			best = s
		}
	}
	return best, true
}

// GroupFlags aggregates a bucket's classification.
type GroupFlags struct {
	IsAllPast         bool `json:"is_all_past"`
	IsNow             bool `json:"is_now"`
	IsNext            bool `json:"is_next"`
	HasActiveFavorite bool `json:"has_active_favorite"`
	HasActiveNote     bool `json:"has_active_note"`
	HasAnyFavorite    bool `json:"has_any_favorite"`
	HasAnyNote        bool `json:"has_any_note"`
}

// Flags computes group-level flags. Active favorite and note badges only
// count events that are upcoming or now.
func Flags(scored []Scored) GroupFlags {
	var f GroupFlags
	if len(scored) == 0 {
		return f
	}
	f.IsAllPast = true
	for _, s := range scored {
		if !s.IsPassed || s.IsNow {
			f.IsAllPast = false
		}
		f.IsNow = f.IsNow || s.IsNow
		f.IsNext = f.IsNext || s.IsNext
		f.HasAnyFavorite = f.HasAnyFavorite || s.IsFavorite
		f.HasAnyNote = f.HasAnyNote || s.HasNotes
		if s.Active() {
			f.HasActiveFavorite = f.HasActiveFavorite || s.IsFavorite
			f.HasActiveNote = f.HasActiveNote || s.HasNotes
		}
	}
	return f
}
