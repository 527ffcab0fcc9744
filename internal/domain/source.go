package domain

// SourceKind identifies the backend serving as the authoritative event store.
type SourceKind string

const (
	SourceKindMemory     SourceKind = "memory"
	SourceKindPostgres   SourceKind = "postgres"
	SourceKindClickHouse SourceKind = "clickhouse"
	SourceKindICS        SourceKind = "ics"
)

// String returns the string representation of SourceKind.
func (s SourceKind) String() string {
	return string(s)
}

// IsValid checks if the source kind is a valid value.
func (s SourceKind) IsValid() bool {
	switch s {
	case SourceKindMemory, SourceKindPostgres, SourceKindClickHouse, SourceKindICS:
		return true
	}
	return false
}
