package domain

import (
	"sort"
	"strings"
)

// Filters narrows an event query by currency, impact and source.
// Empty slices mean "no restriction".
type Filters struct {
	Currencies []string `json:"currencies" yaml:"currencies"`
	Impacts    []Impact `json:"impacts" yaml:"impacts"`
	Source     string   `json:"source" yaml:"source"`
}

// Normalize returns a copy with upper-cased, sorted, de-duplicated values.
func (f Filters) Normalize() Filters {
	out := Filters{Source: strings.ToLower(strings.TrimSpace(f.Source))}

	seenCur := make(map[string]struct{}, len(f.Currencies))
	for _, c := range f.Currencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seenCur[c]; ok {
			continue
		}
		seenCur[c] = struct{}{}
		out.Currencies = append(out.Currencies, c)
	}
	sort.Strings(out.Currencies)

	seenImp := make(map[Impact]struct{}, len(f.Impacts))
	for _, i := range f.Impacts {
		if !i.IsValid() {
			i = ParseImpact(string(i))
		}
		if _, ok := seenImp[i]; ok {
			continue
		}
		seenImp[i] = struct{}{}
		out.Impacts = append(out.Impacts, i)
	}
	sort.Slice(out.Impacts, func(a, b int) bool {
		return out.Impacts[a] < out.Impacts[b]
	})

	return out
}

// Signature returns a normalized string identifying the filter set.
// Two filters that select the same events have the same signature.
func (f Filters) Signature() string {
	n := f.Normalize()
	impacts := make([]string, len(n.Impacts))
	for i, imp := range n.Impacts {
		impacts[i] = string(imp)
	}
	return "cur=" + strings.Join(n.Currencies, ",") +
		"|imp=" + strings.Join(impacts, ",") +
		"|src=" + n.Source
}

// Matches reports whether the event passes the filter. Global events pass
// any currency restriction.
func (f Filters) Matches(e Event) bool {
	if len(f.Currencies) > 0 && !e.IsGlobal() {
		found := false
		for _, c := range f.Currencies {
			if strings.EqualFold(c, e.Currency) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Impacts) > 0 {
		found := false
		for _, i := range f.Impacts {
			if i == e.Impact {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Source != "" && !strings.EqualFold(f.Source, e.Source) {
		return false
	}
	return true
}

// Apply returns the events that pass the filter, preserving order.
func (f Filters) Apply(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
