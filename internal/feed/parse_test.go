package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econ-clock/internal/domain"
)

const (
	cpiEpoch     int64 = 1_705_325_400_000 // 2024-01-15T13:30:00Z
	ecbEpoch     int64 = 1_705_324_500_000 // 2024-01-15T14:15:00+01:00
	holidayEpoch int64 = 1_705_363_200_000 // 2024-01-16T00:00:00Z
)

func calendar() []byte {
	body := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//econ-clock//test//EN
BEGIN:VEVENT
UID:cpi-2024-01
DTSTAMP:20240101T000000Z
DTSTART:20240115T133000Z
SUMMARY:USD: CPI m/m
X-IMPACT:High
DESCRIPTION:Actual: 0.3%\nForecast: 0.2%\nPrevious: 0.1%
END:VEVENT
BEGIN:VEVENT
UID:ecb-2024-01
DTSTAMP:20240101T000000Z
DTSTART;TZID=Europe/Berlin:20240115T141500
SUMMARY:[EUR] ECB Press Conference
PRIORITY:5
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240116
SUMMARY:Bank Holiday
X-CURRENCY:all
CATEGORIES:Holiday
END:VEVENT
BEGIN:VEVENT
UID:no-start
DTSTAMP:20240101T000000Z
SUMMARY:Unscheduled
END:VEVENT
END:VCALENDAR
`
	return []byte(strings.ReplaceAll(body, "\n", "\r\n"))
}

func TestParse(t *testing.T) {
	res, err := Parse(calendar(), "ics")
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, 1, res.Skipped)

	cpi := res.Events[0]
	assert.Equal(t, "cpi-2024-01", cpi.Key)
	assert.Equal(t, "CPI m/m", cpi.Title)
	assert.Equal(t, "USD", cpi.Currency)
	assert.Equal(t, domain.ImpactHigh, cpi.Impact)
	assert.Equal(t, cpiEpoch, cpi.EpochMs)
	assert.Equal(t, "0.3%", cpi.Actual)
	assert.Equal(t, "0.2%", cpi.Forecast)
	assert.Equal(t, "0.1%", cpi.Previous)
	assert.Equal(t, "ics", cpi.Source)

	ecb := res.Events[1]
	assert.Equal(t, "ECB Press Conference", ecb.Title)
	assert.Equal(t, "EUR", ecb.Currency)
	assert.Equal(t, domain.ImpactMedium, ecb.Impact, "PRIORITY 5")
	assert.Equal(t, ecbEpoch, ecb.EpochMs, "TZID honoured")

	holiday := res.Events[2]
	assert.NotEmpty(t, holiday.Key, "derived key without UID")
	assert.Equal(t, domain.CurrencyGlobal, holiday.Currency)
	assert.Equal(t, domain.ImpactNonEconomic, holiday.Impact)
	assert.Equal(t, holidayEpoch, holiday.EpochMs)
}

func TestParse_EmptyBody(t *testing.T) {
	_, err := Parse([]byte("  \r\n"), "ics")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestCurrencyPrefix(t *testing.T) {
	tests := []struct {
		title    string
		currency string
		rest     string
	}{
		{"USD: CPI m/m", "USD", "CPI m/m"},
		{"[JPY] BoJ Rate Decision", "JPY", "BoJ Rate Decision"},
		{"GBP - Retail Sales", "GBP", "Retail Sales"},
		{"GDP Growth Rate", "", ""},
		{"PMI-Flash", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			m := currencyPrefix.FindStringSubmatch(tt.title)
			if tt.currency == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.currency, m[1]+m[2])
			assert.Equal(t, tt.rest, m[3])
		})
	}
}

func TestImpactFromPriority(t *testing.T) {
	assert.Equal(t, "high", impactFromPriority("1"))
	assert.Equal(t, "high", impactFromPriority("4"))
	assert.Equal(t, "medium", impactFromPriority("5"))
	assert.Equal(t, "low", impactFromPriority("9"))
	assert.Equal(t, "", impactFromPriority("0"))
	assert.Equal(t, "", impactFromPriority("x"))
}
