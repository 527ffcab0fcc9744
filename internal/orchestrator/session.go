// Package orchestrator drives the per-tick flow of a viewing session:
// cache observation, day loading, marker computation, exit transitions and
// snapshot publication.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/lifecycle"
	"econ-clock/internal/marker"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
	"econ-clock/internal/timeresolve"
)

// DefaultTick is the interval between ticks in Run.
const DefaultTick = time.Second

// Retry delays after a failed day load. The delay doubles per failure.
const (
	DefaultRetryBackoff = 5 * time.Second
	MaxRetryBackoff     = 5 * time.Minute
)

// CacheAdapter is the part of eventcache.Adapter a session uses.
type CacheAdapter interface {
	eventcache.Querier
	Observe(ctx context.Context, timezone string, nowMs int64) eventcache.Invalidation
}

// Settings is the viewer state a session renders for.
type Settings struct {
	Timezone      string         `json:"timezone"`
	Filters       domain.Filters `json:"filters"`
	FavoritesOnly bool           `json:"favorites_only"`
}

// Snapshot is one published render of the clock face.
type Snapshot struct {
	ID                  string              `json:"id"`
	SessionID           string              `json:"session_id"`
	Version             uint64              `json:"version"`
	GeneratedAt         int64               `json:"generated_at"`
	Settings            Settings            `json:"settings"`
	Loading             bool                `json:"loading"`
	Error               string              `json:"error,omitempty"`
	EventCount          int                 `json:"event_count"`
	Markers             lifecycle.RenderSet `json:"markers"`
	HasNowEvent         bool                `json:"has_now_event"`
	EarliestFutureEpoch *int64              `json:"earliest_future_epoch,omitempty"`
	NextKey             string              `json:"next_key,omitempty"`
}

// Options for creating a Session.
type Options struct {
	Adapter      CacheAdapter
	Annotations  storage.AnnotationStore // optional
	Engine       *marker.Engine
	Tracker      *lifecycle.Tracker
	Clock        clock.Clock
	Tick         time.Duration
	RetryBackoff time.Duration // first retry delay after a failed load
	Settings     Settings
	Logger       zerolog.Logger
}

// Session renders the clock face for one viewer.
type Session struct {
	id          string
	adapter     CacheAdapter
	loader      *eventcache.Loader
	annotations storage.AnnotationStore
	engine      *marker.Engine
	tracker     *lifecycle.Tracker
	now         clock.Clock
	tick        time.Duration
	log         zerolog.Logger
	wake        chan struct{}

	// tickMu serializes ticks and guards the load bookkeeping below.
	tickMu     sync.Mutex
	loadedSig  string
	retryBase  time.Duration
	retryDelay time.Duration
	retryAt    int64 // 0 = no retry scheduled

	mu       sync.RWMutex
	settings Settings
	latest   *Snapshot
	version  uint64
}

// New creates a session. Settings.Timezone defaults to UTC.
func New(opts Options) *Session {
	s := &Session{
		id:          uuid.NewString(),
		adapter:     opts.Adapter,
		annotations: opts.Annotations,
		engine:      opts.Engine,
		tracker:     opts.Tracker,
		now:         opts.Clock,
		tick:        opts.Tick,
		settings:    opts.Settings,
		wake:        make(chan struct{}, 1),
	}
	if s.engine == nil {
		s.engine = marker.NewEngine(marker.Options{Logger: opts.Logger})
	}
	if s.tracker == nil {
		s.tracker = lifecycle.NewTracker(lifecycle.Options{})
	}
	if s.now == nil {
		s.now = clock.System
	}
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	s.retryBase = opts.RetryBackoff
	if s.retryBase <= 0 {
		s.retryBase = DefaultRetryBackoff
	}
	s.retryDelay = s.retryBase
	if s.settings.Timezone == "" {
		s.settings.Timezone = "UTC"
	}
	s.settings.Filters = s.settings.Filters.Normalize()
	s.log = opts.Logger.With().Str("component", "session").Str("session_id", s.id).Logger()
	s.loader = eventcache.NewLoader(s.adapter, func(eventcache.Result) { s.signal() }, s.log)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Settings returns the current viewer settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetTimezone changes the viewer timezone.
func (s *Session) SetTimezone(tz string) error {
	if _, err := timeresolve.Location(tz); err != nil {
		return fmt.Errorf("timezone %q: %w", tz, err)
	}
	s.update(func(st *Settings) { st.Timezone = tz })
	return nil
}

// SetFilters changes the event filter.
func (s *Session) SetFilters(f domain.Filters) {
	s.update(func(st *Settings) { st.Filters = f.Normalize() })
}

// SetFavoritesOnly toggles the favorites-only policy.
func (s *Session) SetFavoritesOnly(on bool) {
	s.update(func(st *Settings) { st.FavoritesOnly = on })
}

// Apply replaces every setting at once.
func (s *Session) Apply(st Settings) error {
	if _, err := timeresolve.Location(st.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", st.Timezone, err)
	}
	s.update(func(cur *Settings) {
		cur.Timezone = st.Timezone
		cur.Filters = st.Filters.Normalize()
		cur.FavoritesOnly = st.FavoritesOnly
	})
	return nil
}

func (s *Session) update(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
	s.signal()
}

// Notify requests an early tick, for example after annotations change.
func (s *Session) Notify() { s.signal() }

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Settle blocks until the most recent day load has landed.
func (s *Session) Settle(ctx context.Context) error {
	return s.loader.Wait(ctx)
}

// Latest returns the most recently published snapshot.
func (s *Session) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Snapshot{}, false
	}
	return *s.latest, true
}

// Tick runs one pass of the flow at the current clock instant and returns
// the latest snapshot and whether a new one was published.
func (s *Session) Tick(ctx context.Context) (Snapshot, bool) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now()
	st := s.Settings()

	reason := s.adapter.Observe(ctx, st.Timezone, now)
	q := eventcache.DayQuery(st.Timezone, now, st.Filters)
	sig := q.Signature()
	cur := s.loader.Current()

	load, why := false, string(reason)
	switch {
	case reason != eventcache.InvalidationNone || sig != s.loadedSig:
		load = true
		if reason == eventcache.InvalidationNone {
			why = "query_changed"
		}
		s.resetRetry()
	case cur.Loading:
	case cur.Err != nil:
		load, why = s.retryDue(now), "retry"
	default:
		s.resetRetry()
	}
	if load {
		s.loadedSig = sig
		v := s.loader.Load(ctx, q)
		s.log.Debug().
			Str("reason", why).
			Str("day", q.DayKey()).
			Uint64("load_version", v).
			Msg("loading day")
	}
	res := s.loader.Current()

	ann := s.annotationSnapshot(ctx)
	out := s.engine.Compute(marker.Input{
		Events:        res.Events,
		Timezone:      st.Timezone,
		NowMs:         now,
		IsFavorite:    func(e domain.Event) bool { return ann[e.Key].Favorite },
		HasNotes:      func(e domain.Event) bool { return ann[e.Key].Note != "" },
		FavoritesOnly: st.FavoritesOnly,
	})
	set, changed := s.tracker.Reconcile(out.Markers, now)

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !changed && s.latest != nil &&
		s.latest.Loading == res.Loading &&
		s.latest.Error == errText &&
		s.latest.Settings.Timezone == st.Timezone &&
		s.latest.Settings.FavoritesOnly == st.FavoritesOnly &&
		s.latest.Settings.Filters.Signature() == st.Filters.Signature() &&
		s.latest.NextKey == out.NextKey &&
		s.latest.HasNowEvent == out.HasNowEvent {
		return *s.latest, false
	}

	s.version++
	snap := &Snapshot{
		ID:                  uuid.NewString(),
		SessionID:           s.id,
		Version:             s.version,
		GeneratedAt:         now,
		Settings:            st,
		Loading:             res.Loading,
		Error:               errText,
		EventCount:          len(res.Events),
		Markers:             set,
		HasNowEvent:         out.HasNowEvent,
		EarliestFutureEpoch: out.EarliestFutureEpoch,
		NextKey:             out.NextKey,
	}
	s.latest = snap
	observability.RecordPublish(set.Exiting())

	s.log.Debug().
		Uint64("version", snap.Version).
		Int("markers", len(set)).
		Int("exiting", set.Exiting()).
		Bool("loading", snap.Loading).
		Msg("snapshot published")
	return *snap, true
}

// retryDue schedules a retry on the first tick that sees a failed load and
// reports true once the delay has passed, doubling the next delay.
func (s *Session) retryDue(now int64) bool {
	if s.retryAt == 0 {
		s.retryAt = now + s.retryDelay.Milliseconds()
		s.log.Warn().Dur("retry_in", s.retryDelay).Msg("day load failed, retry scheduled")
		return false
	}
	if now < s.retryAt {
		return false
	}
	s.retryAt = 0
	s.retryDelay *= 2
	if s.retryDelay > MaxRetryBackoff {
		s.retryDelay = MaxRetryBackoff
	}
	return true
}

func (s *Session) resetRetry() {
	s.retryAt = 0
	s.retryDelay = s.retryBase
}

func (s *Session) annotationSnapshot(ctx context.Context) map[string]storage.Annotation {
	if s.annotations == nil {
		return nil
	}
	ann, err := s.annotations.Snapshot(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("annotation snapshot failed")
		return nil
	}
	return ann
}

// Run ticks until ctx is cancelled. Settings changes and loaded results
// trigger an immediate tick.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info().Dur("tick", s.tick).Str("timezone", s.Settings().Timezone).Msg("session started")
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("session stopped")
			return nil
		case <-ticker.C:
		case <-s.wake:
		}
		s.Tick(ctx)
	}
}
