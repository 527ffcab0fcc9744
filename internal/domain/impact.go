package domain

import "strings"

// Impact represents the market impact classification of an event.
type Impact string

const (
	ImpactHigh        Impact = "HIGH"
	ImpactMedium      Impact = "MEDIUM"
	ImpactLow         Impact = "LOW"
	ImpactNonEconomic Impact = "NON_ECONOMIC"
	ImpactUnknown     Impact = "UNKNOWN"
)

// String returns the string representation of Impact.
func (i Impact) String() string {
	return string(i)
}

// IsValid checks if the impact is a known value.
func (i Impact) IsValid() bool {
	switch i {
	case ImpactHigh, ImpactMedium, ImpactLow, ImpactNonEconomic, ImpactUnknown:
		return true
	}
	return false
}

// Priority returns the ordinal used when ranking events:
// high > medium > low > non-economic > unknown.
func (i Impact) Priority() int {
	switch i {
	case ImpactHigh:
		return 4
	case ImpactMedium:
		return 3
	case ImpactLow:
		return 2
	case ImpactNonEconomic:
		return 1
	default:
		return 0
	}
}

// ParseImpact maps vendor vocabularies (words, 1-3 strengths, colour codes)
// onto Impact. Unrecognized input yields ImpactUnknown.
func ParseImpact(s string) Impact {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, " impact")
	v = strings.ReplaceAll(v, "_", "-")

	switch v {
	case "high", "3", "red", "strong":
		return ImpactHigh
	case "medium", "moderate", "2", "orange", "ora":
		return ImpactMedium
	case "low", "1", "yellow", "yel", "weak":
		return ImpactLow
	case "non-economic", "none", "holiday", "0", "gray", "grey", "gra":
		return ImpactNonEconomic
	}
	return ImpactUnknown
}
