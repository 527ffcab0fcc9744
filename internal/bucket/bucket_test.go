package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econ-clock/internal/domain"
	"econ-clock/internal/timeresolve"
)

func at(hhmm string) int64 {
	t, err := time.Parse(time.RFC3339, "2024-01-15T"+hhmm+":00Z")
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func TestLabelMinutes_CenteredWindow(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         string
	}{
		{7, 45, "07:30"},
		{7, 46, "08:00"},
		{8, 0, "08:00"},
		{8, 15, "08:00"},
		{8, 16, "08:30"},
		{0, 0, "00:00"},
		{0, 15, "00:00"},
		{23, 50, "00:00"},
		{23, 45, "23:30"},
	}

	for _, tt := range tests {
		lt := timeresolve.LocalTime{Hour: tt.hour, Minute: tt.minute}
		got := Key{LabelMinutes: LabelMinutes(lt, 30)}.Label()
		if got != tt.want {
			t.Errorf("LabelMinutes(%s, 30) = %s, want %s", lt, got, tt.want)
		}
	}
}

func TestLabelMinutes_ExactMinute(t *testing.T) {
	lt := timeresolve.LocalTime{Hour: 13, Minute: 37}
	assert.Equal(t, 13*60+37, LabelMinutes(lt, 0))
	assert.Equal(t, 13*60+37, LabelMinutes(lt, 1))
}

func TestLabelMinutes_TenMinuteWindow(t *testing.T) {
	assert.Equal(t, 8*60+30, LabelMinutes(timeresolve.LocalTime{Hour: 8, Minute: 26}, 10))
	assert.Equal(t, 8*60+30, LabelMinutes(timeresolve.LocalTime{Hour: 8, Minute: 35}, 10))
	assert.Equal(t, 8*60+40, LabelMinutes(timeresolve.LocalTime{Hour: 8, Minute: 36}, 10))
}

func TestValidWindow(t *testing.T) {
	for _, w := range []int{0, 1, 5, 10, 15, 30, 60, 90, 1440} {
		assert.True(t, ValidWindow(w), "window %d", w)
	}
	for _, w := range []int{-1, 7, 46, 100, 1441, 2880} {
		assert.False(t, ValidWindow(w), "window %d", w)
	}
}

func TestLabelMinutes_ValidWindowsStayOnGrid(t *testing.T) {
	for _, w := range []int{5, 15, 30, 90} {
		for m := 0; m < minutesPerDay; m++ {
			lt := timeresolve.LocalTime{Hour: m / 60, Minute: m % 60}
			label := LabelMinutes(lt, w)
			require.Zero(t, label%w, "window %d at %s gave %d", w, lt, label)
			require.Less(t, label, minutesPerDay)
		}
	}
}

func TestBucket_GroupsAndOrders(t *testing.T) {
	events := []domain.Event{
		{Key: "b", EpochMs: at("08:15")},
		{Key: "a", EpochMs: at("07:50")},
		{Key: "c", EpochMs: at("08:16")},
		{Key: "d", EpochMs: at("07:50")},
	}

	set := Bucket(events, "UTC", 30)

	require.Equal(t, 2, set.Len())
	keys := set.Keys()
	assert.Equal(t, "UTC@08:00", keys[0].String())
	assert.Equal(t, "UTC@08:30", keys[1].String())

	first := set.Events(keys[0])
	require.Len(t, first, 3)
	assert.Equal(t, []string{"a", "d", "b"}, []string{first[0].Key, first[1].Key, first[2].Key})
	assert.Equal(t, 4, set.Size())
	assert.Empty(t, set.Dropped)
}

func TestBucket_Timezone(t *testing.T) {
	// 13:30 UTC is 08:30 in New York during winter.
	set := Bucket([]domain.Event{{Key: "nfp", EpochMs: at("13:30")}}, "America/New_York", 30)

	require.Equal(t, 1, set.Len())
	k := set.Keys()[0]
	assert.Equal(t, "America/New_York", k.Timezone)
	assert.Equal(t, 8, k.Hour())
	assert.Equal(t, 30, k.Minute())
}

func TestBucket_DropsUnresolvable(t *testing.T) {
	events := []domain.Event{
		{Key: "ok", EpochMs: at("09:00")},
		{Key: "untimed", EpochMs: 0},
	}

	set := Bucket(events, "UTC", 30)
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, []string{"untimed"}, set.Dropped)

	bad := Bucket(events, "No/Such_Zone", 30)
	assert.Equal(t, 0, bad.Len())
	assert.Len(t, bad.Dropped, 2)
}

func TestBucket_EveryEventInExactlyOneBucket(t *testing.T) {
	var events []domain.Event
	base := at("00:00")
	for i := 0; i < 24*60; i += 7 {
		events = append(events, domain.Event{Key: time.Duration(i).String(), EpochMs: base + int64(i)*60_000})
	}

	for _, window := range []int{0, 10, 15, 30, 60} {
		set := Bucket(events, "Asia/Kathmandu", window)
		seen := make(map[string]int)
		for _, k := range set.Keys() {
			for _, e := range set.Events(k) {
				seen[e.Key]++
			}
		}
		assert.Len(t, seen, len(events), "window %d", window)
		for key, n := range seen {
			assert.Equal(t, 1, n, "event %s in window %d", key, window)
		}
	}
}

func TestBucket_Empty(t *testing.T) {
	set := Bucket(nil, "UTC", 30)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.Keys())
}
