// Package marker turns an event list and the current instant into
// clock-face marker groups.
package marker

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"econ-clock/internal/bucket"
	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/priority"
)

// DefaultWindowMinutes is the centered bucket width used when none is set.
const DefaultWindowMinutes = 30

// State is the furthest phase the last rendering pass reached.
type State int

const (
	// StateIdle: no pass has run.
	StateIdle State = iota
	// StateBucketed: the input produced no buckets, nothing was scored.
	StateBucketed
	// StateScored: buckets were scored but the favorites-only policy
	// excluded all of them.
	StateScored
	// StatePublished: at least one marker was emitted.
	StatePublished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBucketed:
		return "bucketed"
	case StateScored:
		return "scored"
	case StatePublished:
		return "published"
	}
	return "unknown"
}

// Predicate reports an association of an event (favorite, has notes).
type Predicate func(domain.Event) bool

// Input is everything one pass depends on.
type Input struct {
	Events        []domain.Event
	Timezone      string
	NowMs         int64
	IsFavorite    Predicate
	HasNotes      Predicate
	FavoritesOnly bool
}

// Group is one marker on the clock face.
type Group struct {
	Key      string  `json:"key"`
	Timezone string  `json:"timezone"`
	Label    string  `json:"label"`
	Hour     int     `json:"hour"`
	Minute   int     `json:"minute"`
	Angle    float64 `json:"angle"` // degrees clockwise from 12 on a 12-hour dial

	Representative priority.Scored   `json:"representative"`
	Events         []priority.Scored `json:"events"`

	priority.GroupFlags
}

// Output is the result of a pass.
type Output struct {
	Markers             []Group `json:"markers"`
	HasNowEvent         bool    `json:"has_now_event"`
	EarliestFutureEpoch *int64  `json:"earliest_future_epoch,omitempty"`
	NextKey             string  `json:"next_key,omitempty"`
}

// Options configures an Engine.
type Options struct {
	WindowMinutes int   // bucket width, <= 1 keys on the exact minute
	NowWindowMs   int64 // defaults to priority.DefaultNowWindowMs
	Logger        zerolog.Logger
}

// Engine computes markers. The bucket set is cached and rebuilt only when
// the event list, timezone or window changes; now-dependent state is
// recomputed on every call.
type Engine struct {
	mu sync.Mutex

	window int
	scorer priority.Scorer
	log    zerolog.Logger

	state       State
	fingerprint uint64
	built       bool
	set         bucket.Set
	bucketed    []domain.Event
	rebuilds    int
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	return &Engine{
		window: opts.WindowMinutes,
		scorer: priority.NewScorer(opts.NowWindowMs),
		log:    opts.Logger.With().Str("component", "marker").Logger(),
	}
}

// State returns the phase reached by the last pass.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Rebuilds returns how many times the bucket set has been rebuilt.
func (e *Engine) Rebuilds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuilds
}

// WindowMinutes returns the configured bucket width.
func (e *Engine) WindowMinutes() int {
	return e.window
}

// Compute runs one pass. It never fails: bad events are dropped and empty
// input yields no markers.
func (e *Engine) Compute(in Input) Output {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	state := StateBucketed

	rebuilt, dropped := e.ensureBuckets(in)

	out := Output{Markers: make([]Group, 0, e.set.Len())}
	nextKey, nextEpoch, hasNext := priority.NextEvent(e.bucketed, in.NowMs)
	if hasNext {
		epoch := nextEpoch
		out.EarliestFutureEpoch = &epoch
		out.NextKey = nextKey
	}

	for _, k := range e.set.Keys() {
		state = StateScored
		events := e.set.Events(k)
		scored := make([]priority.Scored, len(events))
		for i, ev := range events {
			scored[i] = e.scorer.Score(ev, in.NowMs, nextKey, check(in.IsFavorite, ev), check(in.HasNotes, ev))
		}

		flags := priority.Flags(scored)
		if in.FavoritesOnly && !flags.HasActiveFavorite {
			continue
		}
		rep, _ := priority.Representative(scored)

		out.Markers = append(out.Markers, Group{
			Key:            k.String(),
			Timezone:       k.Timezone,
			Label:          k.Label(),
			Hour:           k.Hour(),
			Minute:         k.Minute(),
			Angle:          DialAngle(k.Hour(), k.Minute()),
			Representative: rep,
			Events:         scored,
			GroupFlags:     flags,
		})
		if flags.IsNow {
			out.HasNowEvent = true
		}
	}
	if len(out.Markers) > 0 {
		state = StatePublished
	}
	e.state = state

	observability.RecordCompute(time.Since(start).Seconds(), rebuilt, dropped, len(out.Markers))
	return out
}

func (e *Engine) ensureBuckets(in Input) (rebuilt bool, dropped int) {
	fp := inputFingerprint(in.Events, in.Timezone, e.window)
	if e.built && fp == e.fingerprint {
		return false, 0
	}

	set := bucket.Bucket(in.Events, in.Timezone, e.window)
	if len(set.Dropped) > 0 {
		e.log.Debug().
			Str("timezone", in.Timezone).
			Strs("keys", set.Dropped).
			Msg("dropped events with unresolvable time")
	}

	flat := make([]domain.Event, 0, set.Size())
	for _, k := range set.Keys() {
		flat = append(flat, set.Events(k)...)
	}

	e.set = set
	e.bucketed = flat
	e.fingerprint = fp
	e.built = true
	e.rebuilds++
	return true, len(set.Dropped)
}

func check(p Predicate, ev domain.Event) bool {
	return p != nil && p(ev)
}

// DialAngle returns the clockwise angle in degrees from 12 o'clock of a
// local time on a 12-hour dial.
func DialAngle(hour, minute int) float64 {
	return float64((hour%12)*60+minute) * 0.5
}

func inputFingerprint(events []domain.Event, timezone string, window int) uint64 {
	h := xxhash.New()
	var buf [8]byte

	_, _ = h.WriteString(timezone)
	binary.LittleEndian.PutUint64(buf[:], uint64(window))
	_, _ = h.Write(buf[:])

	for _, ev := range events {
		_, _ = h.WriteString(ev.Key)
		_, _ = h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(ev.EpochMs))
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(ev.Title)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(ev.Currency)
		_, _ = h.WriteString(string(ev.Impact))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Fingerprint hashes the structural content of an output: marker keys,
// representatives, flags and per-event classification. Equal outputs have
// equal fingerprints.
func Fingerprint(out Output) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(out.NextKey)
	_, _ = h.Write([]byte{0, flag(out.HasNowEvent)})
	for _, m := range out.Markers {
		writeGroup(h, m)
	}
	return h.Sum64()
}

// GroupFingerprint hashes the visual state of a single marker.
func GroupFingerprint(g Group) uint64 {
	h := xxhash.New()
	writeGroup(h, g)
	return h.Sum64()
}

func writeGroup(h *xxhash.Digest, m Group) {
	var buf [8]byte
	_, _ = h.WriteString(m.Key)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(m.Representative.Event.Key)
	_, _ = h.Write([]byte{
		0,
		flag(m.IsAllPast), flag(m.IsNow), flag(m.IsNext),
		flag(m.HasActiveFavorite), flag(m.HasActiveNote),
		flag(m.HasAnyFavorite), flag(m.HasAnyNote),
	})
	for _, s := range m.Events {
		_, _ = h.WriteString(s.Event.Key)
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Event.EpochMs))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte{
			flag(s.IsNow), flag(s.IsPassed), flag(s.IsNext),
			flag(s.IsFavorite), flag(s.HasNotes),
		})
	}
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
