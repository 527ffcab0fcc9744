package reporting

import (
	"fmt"
	"strings"
	"time"

	"econ-clock/internal/domain"
)

var impactOrder = []domain.Impact{
	domain.ImpactHigh,
	domain.ImpactMedium,
	domain.ImpactLow,
	domain.ImpactNonEconomic,
	domain.ImpactUnknown,
}

// RenderMarkdown renders the agenda as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Economic Calendar %s (%s)\n\n", r.Day, r.Timezone))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if f := r.Filters; len(f.Currencies) > 0 || len(f.Impacts) > 0 || f.Source != "" {
		sb.WriteString(fmt.Sprintf("Filters: `%s`\n\n", f.Signature()))
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Events | %d |\n", r.Summary.Total))
	for _, imp := range impactOrder {
		if n := r.Summary.ByImpact[imp]; n > 0 {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", imp, n))
		}
	}
	sb.WriteString(fmt.Sprintf("| Released | %d |\n", r.Summary.Released))
	sb.WriteString(fmt.Sprintf("| Favorites | %d |\n", r.Summary.Favorites))
	sb.WriteString(fmt.Sprintf("| With notes | %d |\n", r.Summary.WithNotes))
	if len(r.Summary.Currencies) > 0 {
		sb.WriteString(fmt.Sprintf("| Currencies | %s |\n", strings.Join(r.Summary.Currencies, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Agenda\n\n")
	if len(r.Rows) == 0 {
		sb.WriteString("No events scheduled.\n")
		return sb.String()
	}

	sb.WriteString("| Time | Cur | Impact | Event | Actual | Forecast | Previous | |\n")
	sb.WriteString("|------|-----|--------|-------|--------|----------|----------|-|\n")
	for _, row := range r.Rows {
		mark := ""
		if row.Favorite {
			mark = "★"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			row.LocalTime, row.Currency, row.Impact, escapeCell(row.Title),
			dash(row.Actual), dash(row.Forecast), dash(row.Previous), mark))
	}
	sb.WriteString("\n")

	var noted []AgendaRow
	for _, row := range r.Rows {
		if row.Note != "" {
			noted = append(noted, row)
		}
	}
	if len(noted) > 0 {
		sb.WriteString("## Notes\n\n")
		for _, row := range noted {
			sb.WriteString(fmt.Sprintf("- **%s %s** %s\n", row.LocalTime, row.Title, row.Note))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return escapeCell(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
