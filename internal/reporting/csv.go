package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"local_time", "epoch_ms", "key", "currency", "impact", "title",
	"actual", "forecast", "previous", "favorite", "note", "released",
}

// RenderCSV renders the agenda rows as CSV with a header line.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, row := range r.Rows {
		rec := []string{
			row.LocalTime,
			strconv.FormatInt(row.EpochMs, 10),
			row.Key,
			row.Currency,
			row.Impact.String(),
			row.Title,
			row.Actual,
			row.Forecast,
			row.Previous,
			strconv.FormatBool(row.Favorite),
			row.Note,
			strconv.FormatBool(row.Released),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}
