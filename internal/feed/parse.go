// Package feed reads economic calendars published as iCalendar feeds.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"

	"econ-clock/internal/domain"
	"econ-clock/internal/idhash"
)

// ErrEmptyBody is returned when a feed responds with no content.
var ErrEmptyBody = errors.New("empty ICS body")

// Vendor extension properties carried by calendar exports.
const (
	propCurrency = ical.ComponentProperty("X-CURRENCY")
	propImpact   = ical.ComponentProperty("X-IMPACT")
	propActual   = ical.ComponentProperty("X-ACTUAL")
	propForecast = ical.ComponentProperty("X-FORECAST")
	propPrevious = ical.ComponentProperty("X-PREVIOUS")
)

// "[USD] CPI m/m", "USD: CPI m/m", "USD - CPI m/m"
var currencyPrefix = regexp.MustCompile(`^(?:\[([A-Z]{3})\]|([A-Z]{3})(?::|\s+-))\s*(.+)$`)

// ParseResult holds the events of one feed payload.
type ParseResult struct {
	Events  []domain.Event
	Skipped int // VEVENTs without a usable start
}

// Parse converts every VEVENT of body into an event tagged with source.
// Entries whose start cannot be resolved are skipped, not fatal.
func Parse(body []byte, source string) (ParseResult, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ParseResult{}, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return ParseResult{}, fmt.Errorf("parse calendar: %w", err)
	}

	var res ParseResult
	for _, ve := range cal.Events() {
		raw, err := rawFromVEvent(ve, source)
		if err != nil {
			res.Skipped++
			continue
		}
		ev, err := domain.NormalizeEvent(raw, idhash.ComputeEventKey)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res, nil
}

func rawFromVEvent(ve *ical.VEvent, source string) (domain.RawEvent, error) {
	raw := domain.RawEvent{
		ID:     value(ve, ical.ComponentPropertyUniqueId),
		Title:  value(ve, ical.ComponentPropertySummary),
		Source: source,
	}

	raw.Currency = value(ve, propCurrency)
	if raw.Currency == "" {
		if m := currencyPrefix.FindStringSubmatch(raw.Title); m != nil {
			raw.Currency, raw.Title = m[1]+m[2], m[3]
		}
	}

	raw.Impact = value(ve, propImpact)
	if raw.Impact == "" {
		raw.Impact = impactFromPriority(value(ve, ical.ComponentPropertyPriority))
	}
	if raw.Impact == "" {
		raw.Impact = value(ve, ical.ComponentPropertyCategories)
	}

	raw.Actual, raw.Forecast, raw.Previous = figures(value(ve, ical.ComponentPropertyDescription))
	if v := value(ve, propActual); v != "" {
		raw.Actual = v
	}
	if v := value(ve, propForecast); v != "" {
		raw.Forecast = v
	}
	if v := value(ve, propPrevious); v != "" {
		raw.Previous = v
	}

	dt := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dt == nil || dt.Value == "" {
		return raw, domain.ErrUnresolvableTime
	}
	if isAllDay(dt) {
		// Date-only entries resolve to midnight UTC.
		v := strings.TrimSpace(dt.Value)
		if len(v) != 8 {
			return raw, domain.ErrUnresolvableTime
		}
		raw.Date = v[0:4] + "-" + v[4:6] + "-" + v[6:8]
		return raw, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return raw, domain.ErrUnresolvableTime
	}
	ms := start.UnixMilli()
	raw.TimestampMs = &ms
	return raw, nil
}

func value(ve *ical.VEvent, p ical.ComponentProperty) string {
	prop := ve.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// impactFromPriority maps RFC 5545 PRIORITY (1 highest, 9 lowest).
func impactFromPriority(s string) string {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return ""
	}
	switch {
	case n <= 4:
		return "high"
	case n == 5:
		return "medium"
	default:
		return "low"
	}
}

// figures extracts "Actual:", "Forecast:" and "Previous:" lines.
func figures(desc string) (actual, forecast, previous string) {
	desc = strings.ReplaceAll(desc, `\n`, "\n")
	for _, line := range strings.Split(desc, "\n") {
		name, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "actual":
			actual = val
		case "forecast", "consensus":
			forecast = val
		case "previous", "prior":
			previous = val
		}
	}
	return actual, forecast, previous
}
