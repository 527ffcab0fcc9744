// Package lifecycle keeps markers on screen long enough to animate out and
// suppresses re-renders when nothing visible changed.
package lifecycle

import (
	"sort"
	"sync"
	"time"

	"econ-clock/internal/marker"
)

const (
	DefaultExitAnimation = 300 * time.Millisecond
	DefaultGrace         = 450 * time.Millisecond
)

// Entry is the render state of one marker key.
type Entry struct {
	Key        string       `json:"key"`
	Marker     marker.Group `json:"marker"`
	AppearedAt int64        `json:"appeared_at"`
	Exiting    bool         `json:"exiting"`
	ExitAt     int64        `json:"exit_at,omitempty"`

	visual uint64
}

// RenderSet is the ordered output of a reconcile: current markers in input
// order followed by exiting markers ordered by key.
type RenderSet []Entry

// Keys returns entry keys in order.
func (r RenderSet) Keys() []string {
	keys := make([]string, len(r))
	for i, e := range r {
		keys[i] = e.Key
	}
	return keys
}

// Exiting returns the number of exiting entries.
func (r RenderSet) Exiting() int {
	n := 0
	for _, e := range r {
		if e.Exiting {
			n++
		}
	}
	return n
}

// Options configures a Tracker.
type Options struct {
	ExitAnimation time.Duration
	Grace         time.Duration // must be at least ExitAnimation
}

// Tracker reconciles successive marker sets.
type Tracker struct {
	mu      sync.Mutex
	grace   int64
	exit    time.Duration
	entries map[string]*Entry
	prev    RenderSet
	primed  bool
}

// NewTracker creates a Tracker. Zero options use the defaults; a grace
// shorter than the exit animation is raised to it.
func NewTracker(opts Options) *Tracker {
	if opts.ExitAnimation <= 0 {
		opts.ExitAnimation = DefaultExitAnimation
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Grace < opts.ExitAnimation {
		opts.Grace = opts.ExitAnimation
	}
	return &Tracker{
		grace:   opts.Grace.Milliseconds(),
		exit:    opts.ExitAnimation,
		entries: make(map[string]*Entry),
	}
}

// ExitAnimation returns the configured exit animation duration.
func (t *Tracker) ExitAnimation() time.Duration {
	return t.exit
}

// Grace returns how long an exiting marker is kept.
func (t *Tracker) Grace() time.Duration {
	return time.Duration(t.grace) * time.Millisecond
}

// Reconcile merges the current markers into the tracked state at nowMs.
// When the result is identical to the previous render set (same keys,
// exiting flags, timestamps and marker state) the previous set is returned
// and changed is false.
func (t *Tracker) Reconcile(markers []marker.Group, nowMs int64) (RenderSet, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := make(map[string]struct{}, len(markers))
	next := make(RenderSet, 0, len(markers)+len(t.entries))

	for _, m := range markers {
		current[m.Key] = struct{}{}
		e, ok := t.entries[m.Key]
		if !ok {
			e = &Entry{Key: m.Key, AppearedAt: nowMs}
			t.entries[m.Key] = e
		}
		e.Marker = m
		e.Exiting = false
		e.ExitAt = 0
		e.visual = marker.GroupFingerprint(m)
		next = append(next, *e)
	}

	var exiting RenderSet
	for key, e := range t.entries {
		if _, ok := current[key]; ok {
			continue
		}
		if !e.Exiting {
			e.Exiting = true
			e.ExitAt = nowMs
		}
		if nowMs-e.ExitAt >= t.grace {
			delete(t.entries, key)
			continue
		}
		exiting = append(exiting, *e)
	}
	sort.Slice(exiting, func(i, j int) bool {
		return exiting[i].Key < exiting[j].Key
	})
	next = append(next, exiting...)

	if t.primed && equal(t.prev, next) {
		return t.prev, false
	}
	t.prev = next
	t.primed = true
	return next, true
}

// Previous returns the last render set.
func (t *Tracker) Previous() RenderSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prev
}

func equal(a, b RenderSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key ||
			a[i].Exiting != b[i].Exiting ||
			a[i].AppearedAt != b[i].AppearedAt ||
			a[i].ExitAt != b[i].ExitAt ||
			a[i].visual != b[i].visual {
			return false
		}
	}
	return true
}
