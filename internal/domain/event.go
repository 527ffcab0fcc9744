package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrUnresolvableTime is returned when none of a raw event's time fields
// can be turned into an absolute instant.
var ErrUnresolvableTime = errors.New("unresolvable event time")

// CurrencyGlobal is the sentinel currency for events that are not tied to a
// single currency (G20 summits, bank holidays, etc.).
const CurrencyGlobal = "ALL"

// RawEvent is a calendar record as delivered by a source, before its
// timestamp fields are merged into a single instant.
type RawEvent struct {
	ID       string
	Title    string
	Currency string
	Impact   string
	Source   string

	// Time fields in order of authority. The first one that resolves wins.
	TimestampMs    *int64 // epoch milliseconds
	DateTime       string // RFC3339, with or without fractional seconds
	Date           string // YYYY-MM-DD
	Time           string // HH:MM or HH:MM:SS, empty for all-day entries
	SourceTimezone string // IANA zone for Date/Time, UTC if empty

	Actual   string
	Forecast string
	Previous string
}

// Event is an immutable economic calendar entry with its instant resolved.
// Corresponds to the economic_events table in PostgreSQL/ClickHouse.
type Event struct {
	Key      string `json:"key" msgpack:"key"` // ID when present, otherwise a derived key
	ID       string `json:"id,omitempty" msgpack:"id"`
	Title    string `json:"title" msgpack:"title"`
	Currency string `json:"currency" msgpack:"currency"` // upper-case ISO code or CurrencyGlobal
	Impact   Impact `json:"impact" msgpack:"impact"`
	EpochMs  int64  `json:"epoch_ms" msgpack:"epoch_ms"` // Unix timestamp in milliseconds, 0 = unresolved
	Source   string `json:"source,omitempty" msgpack:"source"`

	Actual   string `json:"actual,omitempty" msgpack:"actual"`
	Forecast string `json:"forecast,omitempty" msgpack:"forecast"`
	Previous string `json:"previous,omitempty" msgpack:"previous"`
}

// HasTime reports whether the event carries a resolved instant.
func (e Event) HasTime() bool {
	return e.EpochMs > 0
}

// IsGlobal reports whether the event applies to every currency.
func (e Event) IsGlobal() bool {
	return e.Currency == CurrencyGlobal
}

// Time returns the event instant in UTC.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.EpochMs).UTC()
}

// KeyFunc derives a stable key for events that arrive without an ID.
type KeyFunc func(title, currency string, epochMs int64, source string) string

// NormalizeEvent merges the raw time fields into one epoch instant and
// canonicalizes currency and impact. The key falls back to keyFn when the
// raw record has no ID.
func NormalizeEvent(raw RawEvent, keyFn KeyFunc) (Event, error) {
	epoch, err := ResolveEpoch(raw)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:       strings.TrimSpace(raw.ID),
		Title:    strings.TrimSpace(raw.Title),
		Currency: NormalizeCurrency(raw.Currency),
		Impact:   ParseImpact(raw.Impact),
		EpochMs:  epoch,
		Source:   strings.TrimSpace(raw.Source),
		Actual:   raw.Actual,
		Forecast: raw.Forecast,
		Previous: raw.Previous,
	}

	ev.Key = ev.ID
	if ev.Key == "" && keyFn != nil {
		ev.Key = keyFn(ev.Title, ev.Currency, ev.EpochMs, ev.Source)
	}
	return ev, nil
}

// ResolveEpoch returns the authoritative instant of a raw event.
// Order: TimestampMs, DateTime, Date+Time in SourceTimezone.
func ResolveEpoch(raw RawEvent) (int64, error) {
	if raw.TimestampMs != nil && *raw.TimestampMs > 0 {
		return *raw.TimestampMs, nil
	}

	if s := strings.TrimSpace(raw.DateTime); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UnixMilli(), nil
		}
	}

	date := strings.TrimSpace(raw.Date)
	if date == "" {
		return 0, ErrUnresolvableTime
	}

	loc := time.UTC
	if tz := strings.TrimSpace(raw.SourceTimezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return 0, ErrUnresolvableTime
		}
		loc = l
	}

	clock := strings.TrimSpace(raw.Time)
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02 15:04"}
	if clock == "" {
		clock = "00:00"
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, date+" "+clock, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, ErrUnresolvableTime
}

// NormalizeCurrency upper-cases a currency code; blank and "all" map to
// CurrencyGlobal.
func NormalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "", "ALL", "GLOBAL", "*":
		return CurrencyGlobal
	}
	return c
}
