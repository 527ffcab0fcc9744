package eventcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econ-clock/internal/domain"
)

// scriptedQuerier releases each query's result only when told to.
type scriptedQuerier struct {
	mu      sync.Mutex
	release map[string]chan Result
}

func newScriptedQuerier() *scriptedQuerier {
	return &scriptedQuerier{release: make(map[string]chan Result)}
}

func (s *scriptedQuerier) ch(tz string) chan Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.release[tz]
	if !ok {
		c = make(chan Result, 1)
		s.release[tz] = c
	}
	return c
}

func (s *scriptedQuerier) Query(_ context.Context, q Query) Result {
	return <-s.ch(q.Timezone)
}

func TestLoader_DiscardsStaleResult(t *testing.T) {
	sq := newScriptedQuerier()
	applied := make(chan Result, 4)
	l := NewLoader(sq, func(r Result) { applied <- r }, zerolog.Nop())
	ctx := context.Background()

	v1 := l.Load(ctx, DayQuery("UTC", t0, domain.Filters{}))
	v2 := l.Load(ctx, DayQuery("Asia/Tokyo", t0, domain.Filters{}))
	assert.Greater(t, v2, v1)
	assert.True(t, l.Current().Loading)

	sq.ch("Asia/Tokyo") <- Result{Events: []domain.Event{{Key: "new"}}}
	got := <-applied
	require.Len(t, got.Events, 1)
	assert.Equal(t, "new", got.Events[0].Key)

	// The older query completes last and must not overwrite.
	sq.ch("UTC") <- Result{Events: []domain.Event{{Key: "old"}}}
	assert.Never(t, func() bool { return len(applied) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	cur := l.Current()
	assert.False(t, cur.Loading)
	require.Len(t, cur.Events, 1)
	assert.Equal(t, "new", cur.Events[0].Key)
}

func TestLoader_KeepsPreviousEventsWhileLoading(t *testing.T) {
	sq := newScriptedQuerier()
	applied := make(chan Result, 4)
	l := NewLoader(sq, func(r Result) { applied <- r }, zerolog.Nop())
	ctx := context.Background()

	assert.Empty(t, l.Current().Events)
	assert.False(t, l.Current().Loading)

	l.Load(ctx, DayQuery("UTC", t0, domain.Filters{}))
	sq.ch("UTC") <- Result{Events: []domain.Event{{Key: "a"}}}
	<-applied

	l.Load(ctx, DayQuery("UTC", t0, domain.Filters{}))
	cur := l.Current()
	assert.True(t, cur.Loading)
	require.Len(t, cur.Events, 1)
	assert.Equal(t, "a", cur.Events[0].Key)

	sq.ch("UTC") <- Result{Events: []domain.Event{}}
	<-applied
	assert.Empty(t, l.Current().Events)
	assert.Equal(t, uint64(2), l.Version())
}

func TestLoader_Wait(t *testing.T) {
	sq := newScriptedQuerier()
	l := NewLoader(sq, nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx), "idle before any load")

	l.Load(ctx, DayQuery("UTC", t0, domain.Filters{}))
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(short), context.DeadlineExceeded)

	sq.ch("UTC") <- Result{Events: []domain.Event{{Key: "a"}}}
	require.NoError(t, l.Wait(ctx))
	assert.False(t, l.Current().Loading)
}
