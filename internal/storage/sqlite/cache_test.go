package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

const t0 int64 = 1_705_305_600_000 // 2024-01-15T08:00:00Z

func setupCache(t *testing.T) (*Cache, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(t0)
	c, err := Open(":memory:", clk.Clock())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clk
}

func record(key, tz, day string) storage.RangeRecord {
	return storage.RangeRecord{
		Key:      key,
		Start:    t0,
		End:      t0 + 24*3600*1000,
		Timezone: tz,
		DayKey:   day,
		Filters:  "cur=|imp=|src=",
	}
}

func sampleEvents() []domain.Event {
	return []domain.Event{
		{Key: "b", Title: "Retail Sales", Currency: "USD", Impact: domain.ImpactMedium, EpochMs: t0 + 2000, Forecast: "0.4%"},
		{Key: "a", Title: "CPI", Currency: "USD", Impact: domain.ImpactHigh, EpochMs: t0 + 1000},
	}
}

func TestCache_PutAndGetRange(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("q1", "UTC", "2024-01-15"), sampleEvents()))

	got, ok, err := c.GetRange(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key, "ordered by epoch")
	assert.Equal(t, sampleEvents()[0], got[1], "payload round-trips every field")

	_, ok, err = c.GetRange(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EmptyRangeIsAHit(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("empty", "UTC", "2024-01-15"), nil))

	got, ok, err := c.GetRange(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestCache_Expiry(t *testing.T) {
	c, clk := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("q1", "UTC", "2024-01-15"), sampleEvents()))

	clk.Advance(DefaultRangeTTL - time.Millisecond)
	_, ok, _ := c.GetRange(ctx, "q1")
	assert.True(t, ok)

	clk.Advance(time.Millisecond)
	_, ok, _ = c.GetRange(ctx, "q1")
	assert.False(t, ok)

	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, events, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, records)
	assert.Equal(t, 0, events, "orphaned events are removed")
}

func TestCache_SharedEventsSurviveCleanup(t *testing.T) {
	c, clk := setupCache(t)
	ctx := context.Background()

	short := record("short", "UTC", "2024-01-15")
	short.ExpiresAt = time.UnixMilli(t0 + 1000)
	require.NoError(t, c.PutRange(ctx, short, sampleEvents()))
	require.NoError(t, c.PutRange(ctx, record("long", "UTC", "2024-01-15"), sampleEvents()[:1]))

	clk.Advance(time.Second)
	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok, err := c.GetRange(ctx, "long")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	_, events, _ := c.Stats(ctx)
	assert.Equal(t, 1, events)
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("ny-15", "America/New_York", "2024-01-15"), sampleEvents()))
	require.NoError(t, c.PutRange(ctx, record("ny-16", "America/New_York", "2024-01-16"), sampleEvents()))
	require.NoError(t, c.PutRange(ctx, record("tokyo", "Asia/Tokyo", "2024-01-15"), sampleEvents()))

	n, err := c.InvalidateDay(ctx, "America/New_York", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ := c.GetRange(ctx, "ny-15")
	assert.False(t, ok)
	_, ok, _ = c.GetRange(ctx, "ny-16")
	assert.True(t, ok)

	n, err = c.InvalidateTimezone(ctx, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ = c.GetRange(ctx, "tokyo")
	assert.True(t, ok)
}

func TestCache_ReplaceRange(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("q", "UTC", "2024-01-15"), sampleEvents()))

	revised := sampleEvents()[:1]
	revised[0].Actual = "0.6%"
	require.NoError(t, c.PutRange(ctx, record("q", "UTC", "2024-01-15"), revised))

	got, ok, err := c.GetRange(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "0.6%", got[0].Actual)
}

func TestCache_GetCovering(t *testing.T) {
	c, clk := setupCache(t)
	ctx := context.Background()
	rec := record("day", "UTC", "2024-01-15")
	require.NoError(t, c.PutRange(ctx, rec, sampleEvents()))

	got, ok, err := c.GetCovering(ctx, "UTC", rec.Filters, t0, t0+1500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key)

	got, ok, err = c.GetCovering(ctx, "UTC", rec.Filters, t0+5000, t0+6000)
	require.NoError(t, err)
	assert.True(t, ok, "covered but empty is still a hit")
	assert.Empty(t, got)

	tests := []struct {
		name       string
		tz, filter string
		start, end int64
	}{
		{"other timezone", "Asia/Tokyo", rec.Filters, t0, t0 + 1500},
		{"other filters", "UTC", "cur=USD|imp=|src=", t0, t0 + 1500},
		{"starts before record", "UTC", rec.Filters, t0 - 1, t0 + 1500},
		{"ends after record", "UTC", rec.Filters, t0, rec.End + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := c.GetCovering(ctx, tt.tz, tt.filter, tt.start, tt.end)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	clk.Advance(DefaultRangeTTL + time.Second)
	_, ok, err = c.GetCovering(ctx, "UTC", rec.Filters, t0, t0+1500)
	require.NoError(t, err)
	assert.False(t, ok, "expired records do not cover")
}

func TestCache_GetCoveringIgnoresOtherRecordsEvents(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("day", "UTC", "2024-01-15"), sampleEvents()[1:]))
	other := record("usd", "UTC", "2024-01-15")
	other.Filters = "cur=USD|imp=|src="
	require.NoError(t, c.PutRange(ctx, other, sampleEvents()))

	got, ok, err := c.GetCovering(ctx, "UTC", "cur=|imp=|src=", t0, t0+5000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key)
}

func TestCache_InvalidInput(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.PutRange(ctx, storage.RangeRecord{}, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, c.PutRange(ctx, record("q", "UTC", "d"), []domain.Event{{}}), storage.ErrInvalidInput)
}

func TestCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	clk := clock.NewManual(t0)
	ctx := context.Background()

	c, err := Open(path, clk.Clock())
	require.NoError(t, err)
	require.NoError(t, c.PutRange(ctx, record("q", "UTC", "2024-01-15"), sampleEvents()))
	require.NoError(t, c.Close())

	reopened, err := Open(path, clk.Clock())
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.GetRange(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, got, 2)
}

func TestCleanupJob(t *testing.T) {
	c, clk := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRange(ctx, record("q", "UTC", "2024-01-15"), sampleEvents()))
	clk.Advance(DefaultRangeTTL)

	job := NewCleanupJob(c, zerolog.Nop())
	assert.Equal(t, "persistent_cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	records, _, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, records)
}
