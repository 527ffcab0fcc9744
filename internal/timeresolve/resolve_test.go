package timeresolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		instant  string
		want     LocalTime
	}{
		{"utc", "UTC", "2024-03-01T12:34:00Z", LocalTime{12, 34}},
		{"new york winter", "America/New_York", "2024-01-15T13:30:00Z", LocalTime{8, 30}},
		{"new york summer", "America/New_York", "2024-07-15T12:30:00Z", LocalTime{8, 30}},
		{"day after spring forward", "America/New_York", "2024-03-10T07:30:00Z", LocalTime{3, 30}},
		{"kathmandu +05:45", "Asia/Kathmandu", "2024-01-01T00:00:00Z", LocalTime{5, 45}},
		{"kolkata +05:30", "Asia/Kolkata", "2024-01-01T03:00:00Z", LocalTime{8, 30}},
		{"chatham +13:45", "Pacific/Chatham", "2024-01-01T00:00:00Z", LocalTime{13, 45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.timezone, ms(tt.instant))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	_, ok := Resolve("Not/AZone", ms("2024-01-01T00:00:00Z"))
	assert.False(t, ok, "unknown zone")

	_, ok = Resolve("UTC", 0)
	assert.False(t, ok, "zero epoch")

	_, ok = Resolve("UTC", -5)
	assert.False(t, ok, "negative epoch")
}

func TestLocalTime(t *testing.T) {
	lt := LocalTime{Hour: 7, Minute: 5}
	assert.Equal(t, 425, lt.TotalMinutes())
	assert.Equal(t, "07:05", lt.String())
}

func TestDayKey(t *testing.T) {
	instant := ms("2024-01-01T03:00:00Z")

	assert.Equal(t, "2024-01-01", DayKey("UTC", instant))
	assert.Equal(t, "2023-12-31", DayKey("America/Los_Angeles", instant))
	assert.Equal(t, "2024-01-01", DayKey("Asia/Tokyo", instant))
	assert.Equal(t, "2024-01-01", DayKey("Bogus/Zone", instant), "unknown zone falls back to UTC")
}

func TestDayBounds_DST(t *testing.T) {
	// 2024-03-10 is a 23-hour day in New York.
	start, end := DayBounds("America/New_York", ms("2024-03-10T15:00:00Z"))
	assert.Equal(t, ms("2024-03-10T05:00:00Z"), start.UnixMilli())
	assert.Equal(t, ms("2024-03-11T04:00:00Z"), end.UnixMilli())
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	// Regular day.
	start, end = DayBounds("UTC", ms("2024-06-01T23:59:59Z"))
	assert.Equal(t, ms("2024-06-01T00:00:00Z"), start.UnixMilli())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}
