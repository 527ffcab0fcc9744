package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeQueryKey computes a deterministic key for a cached range query.
// Formula: SHA256(range_start|range_end|filter_signature|timezone)
// Returns hex-encoded hash (64 characters).
func ComputeQueryKey(rangeStart, rangeEnd int64, filterSignature, timezone string) string {
	data := fmt.Sprintf("%d|%d|%s|%s",
		rangeStart,
		rangeEnd,
		filterSignature,
		timezone,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
