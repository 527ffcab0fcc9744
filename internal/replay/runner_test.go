package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/orchestrator"
	"econ-clock/internal/storage/memory"
)

const t0 int64 = 1_705_305_600_000 // 2024-01-15T08:00:00Z

func at(minutes int64) int64 { return t0 + minutes*60_000 }

func newRunner(t *testing.T) *Runner {
	t.Helper()
	store := memory.NewEventStore()
	require.NoError(t, store.InsertBulk(context.Background(), []domain.Event{
		{Key: "cpi", Title: "CPI m/m", Currency: "USD", Impact: domain.ImpactHigh, EpochMs: at(30)},
		{Key: "ifo", Title: "Ifo Business Climate", Currency: "EUR", Impact: domain.ImpactLow, EpochMs: at(90)},
	}))

	clk := clock.NewManual(t0)
	adapter := eventcache.NewAdapter(eventcache.Options{
		Hot:    memory.NewHotCache(5*time.Minute, clk.Clock()),
		Source: store,
		Clock:  clk.Clock(),
		Logger: zerolog.Nop(),
	})
	s := orchestrator.New(orchestrator.Options{
		Adapter:  adapter,
		Clock:    clk.Clock(),
		Settings: orchestrator.Settings{Timezone: "UTC"},
		Logger:   zerolog.Nop(),
	})
	return NewRunner(s, clk)
}

func TestRunner_Run(t *testing.T) {
	r := newRunner(t)
	var c Collector

	n, err := r.Run(context.Background(), at(0), at(60), time.Minute, &c)
	require.NoError(t, err)
	require.Equal(t, len(c.Frames), n)
	require.GreaterOrEqual(t, n, 2)

	// The load may land before the first tick reads it, so the loaded
	// frame is either first or second.
	loaded := c.Frames[0]
	if loaded.Snapshot.Loading {
		loaded = c.Frames[1]
	}
	assert.Equal(t, at(0), loaded.AtMs)
	assert.False(t, loaded.Snapshot.Loading)
	assert.Equal(t, 2, loaded.Snapshot.EventCount)
	assert.Equal(t, "cpi", loaded.Snapshot.NextKey)

	for i := 1; i < len(c.Frames); i++ {
		assert.LessOrEqual(t, c.Frames[i-1].AtMs, c.Frames[i].AtMs)
		assert.Greater(t, c.Frames[i].Snapshot.Version, c.Frames[i-1].Snapshot.Version)
	}

	last := c.Frames[len(c.Frames)-1]
	assert.Equal(t, "ifo", last.Snapshot.NextKey)
}

func TestRunner_InvalidRange(t *testing.T) {
	r := newRunner(t)

	_, err := r.Run(context.Background(), at(10), at(10), time.Minute, &Collector{})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = r.Run(context.Background(), at(0), at(10), 0, &Collector{})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRunner_SinkErrorStops(t *testing.T) {
	r := newRunner(t)
	boom := errors.New("sink full")

	n, err := r.Run(context.Background(), at(0), at(60), time.Minute, SinkFunc(func(context.Context, Frame) error {
		return boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestRunner_Cancelled(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, at(0), at(60), time.Minute, &Collector{})
	assert.ErrorIs(t, err, context.Canceled)
}
