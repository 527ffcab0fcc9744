package reporting

import (
	"time"

	"econ-clock/internal/domain"
)

// Report is the agenda of one local calendar day.
type Report struct {
	GeneratedAt time.Time
	Timezone    string
	Day         string // YYYY-MM-DD in Timezone
	Filters     domain.Filters

	Summary Summary

	// Agenda rows ordered by local time, then impact (high first), then key.
	Rows []AgendaRow
}

// Summary counts the day's events.
type Summary struct {
	Total      int
	ByImpact   map[domain.Impact]int
	Currencies []string // sorted, distinct
	Favorites  int
	WithNotes  int
	Released   int // events at or before GeneratedAt
}

// AgendaRow is one event as listed in the agenda.
type AgendaRow struct {
	LocalTime string // HH:MM in the report timezone
	EpochMs   int64
	Key       string
	Currency  string
	Impact    domain.Impact
	Title     string
	Actual    string
	Forecast  string
	Previous  string
	Favorite  bool
	Note      string
	Released  bool
}
