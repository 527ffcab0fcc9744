package eventcache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
)

// Querier is the part of Adapter the loader depends on.
type Querier interface {
	Query(ctx context.Context, q Query) Result
}

// Loader runs queries in the background and keeps the latest result.
// A result that arrives after a newer Load was issued is discarded.
type Loader struct {
	querier  Querier
	onResult func(Result)
	log      zerolog.Logger

	mu      sync.Mutex
	version uint64
	current Result
	idle    chan struct{} // closed when the newest load has landed
}

// NewLoader creates a loader. onResult, if set, is called after each
// applied result.
func NewLoader(q Querier, onResult func(Result), log zerolog.Logger) *Loader {
	idle := make(chan struct{})
	close(idle)
	return &Loader{
		querier:  q,
		onResult: onResult,
		log:      log,
		current:  Result{Events: []domain.Event{}},
		idle:     idle,
	}
}

// Load starts q and returns its version. Previous events stay visible with
// Loading set until the result lands.
func (l *Loader) Load(ctx context.Context, q Query) uint64 {
	l.mu.Lock()
	l.version++
	v := l.version
	l.current.Loading = true
	select {
	case <-l.idle:
		l.idle = make(chan struct{})
	default:
	}
	l.mu.Unlock()

	go l.run(ctx, q, v)
	return v
}

func (l *Loader) run(ctx context.Context, q Query, v uint64) {
	res := l.querier.Query(ctx, q)
	res.Loading = false

	l.mu.Lock()
	if v != l.version {
		l.mu.Unlock()
		observability.RecordStaleResult()
		l.log.Debug().Uint64("version", v).Msg("discarding stale result")
		return
	}
	l.current = res
	close(l.idle)
	l.mu.Unlock()

	if l.onResult != nil {
		l.onResult(res)
	}
}

// Wait blocks until the newest load has landed or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the latest applied result.
func (l *Loader) Current() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := l.current
	res.Events = append([]domain.Event(nil), l.current.Events...)
	if res.Events == nil {
		res.Events = []domain.Event{}
	}
	return res
}

// Version returns the version of the most recent Load.
func (l *Loader) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}
