package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestResolveEpoch_FieldPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  RawEvent
		want int64
	}{
		{
			name: "timestamp wins over other fields",
			raw: RawEvent{
				TimestampMs: int64Ptr(1704067200000),
				DateTime:    "2030-01-01T00:00:00Z",
				Date:        "2030-01-01",
			},
			want: 1704067200000,
		},
		{
			name: "RFC3339 datetime with offset",
			raw:  RawEvent{DateTime: "2024-01-01T09:30:00+01:00"},
			want: 1704097800000,
		},
		{
			name: "date and time in source timezone",
			raw:  RawEvent{Date: "2024-01-01", Time: "08:30", SourceTimezone: "America/New_York"},
			want: 1704115800000,
		},
		{
			name: "date only defaults to midnight UTC",
			raw:  RawEvent{Date: "2024-01-01"},
			want: 1704067200000,
		},
		{
			name: "non-positive timestamp falls through to datetime",
			raw:  RawEvent{TimestampMs: int64Ptr(0), DateTime: "2024-01-01T00:00:00Z"},
			want: 1704067200000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEpoch(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEpoch_Unresolvable(t *testing.T) {
	cases := []RawEvent{
		{},
		{DateTime: "yesterday"},
		{Date: "2024-13-45"},
		{Date: "2024-01-01", SourceTimezone: "Mars/Olympus"},
	}
	for _, raw := range cases {
		_, err := ResolveEpoch(raw)
		if !errors.Is(err, ErrUnresolvableTime) {
			t.Errorf("ResolveEpoch(%+v) error = %v, want ErrUnresolvableTime", raw, err)
		}
	}
}

func TestNormalizeEvent(t *testing.T) {
	keyFn := func(title, currency string, epochMs int64, source string) string {
		return "derived:" + title
	}

	ev, err := NormalizeEvent(RawEvent{
		Title:       " CPI m/m ",
		Currency:    "usd",
		Impact:      "High",
		TimestampMs: int64Ptr(1704067200000),
	}, keyFn)
	require.NoError(t, err)

	assert.Equal(t, "derived:CPI m/m", ev.Key)
	assert.Equal(t, "USD", ev.Currency)
	assert.Equal(t, ImpactHigh, ev.Impact)
	assert.True(t, ev.HasTime())

	withID, err := NormalizeEvent(RawEvent{ID: "ev-1", Date: "2024-01-01"}, keyFn)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", withID.Key)
	assert.True(t, withID.IsGlobal())
}

func TestParseImpact(t *testing.T) {
	tests := map[string]Impact{
		"High":          ImpactHigh,
		"high impact":   ImpactHigh,
		"3":             ImpactHigh,
		"Medium":        ImpactMedium,
		"ora":           ImpactMedium,
		"low":           ImpactLow,
		"Non-Economic":  ImpactNonEconomic,
		"non_economic":  ImpactNonEconomic,
		"holiday":       ImpactNonEconomic,
		"":              ImpactUnknown,
		"catastrophic":  ImpactUnknown,
	}
	for in, want := range tests {
		if got := ParseImpact(in); got != want {
			t.Errorf("ParseImpact(%q) = %s, want %s", in, got, want)
		}
	}

	assert.Greater(t, ImpactHigh.Priority(), ImpactMedium.Priority())
	assert.Greater(t, ImpactMedium.Priority(), ImpactLow.Priority())
	assert.Greater(t, ImpactLow.Priority(), ImpactNonEconomic.Priority())
	assert.Greater(t, ImpactNonEconomic.Priority(), ImpactUnknown.Priority())
}

func TestFilters_SignatureNormalized(t *testing.T) {
	a := Filters{Currencies: []string{"usd", "EUR", "usd"}, Impacts: []Impact{ImpactHigh, ImpactLow}}
	b := Filters{Currencies: []string{"EUR", "USD"}, Impacts: []Impact{ImpactLow, "high"}}

	assert.Equal(t, a.Signature(), b.Signature())
	assert.NotEqual(t, a.Signature(), Filters{}.Signature())
}

func TestFilters_Matches(t *testing.T) {
	f := Filters{Currencies: []string{"USD"}, Impacts: []Impact{ImpactHigh}}

	assert.True(t, f.Matches(Event{Currency: "USD", Impact: ImpactHigh}))
	assert.False(t, f.Matches(Event{Currency: "EUR", Impact: ImpactHigh}))
	assert.False(t, f.Matches(Event{Currency: "USD", Impact: ImpactLow}))
	assert.True(t, f.Matches(Event{Currency: CurrencyGlobal, Impact: ImpactHigh}), "global events pass currency filter")

	src := Filters{Source: "ics"}
	assert.True(t, src.Matches(Event{Source: "ICS"}))
	assert.False(t, src.Matches(Event{Source: "postgres"}))

	events := []Event{
		{Key: "a", Currency: "USD", Impact: ImpactHigh},
		{Key: "b", Currency: "JPY", Impact: ImpactHigh},
	}
	got := f.Apply(events)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key)
}
