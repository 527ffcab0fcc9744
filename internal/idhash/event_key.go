package idhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// eventKeyBytes is the number of digest bytes kept in a derived event key.
// 16 bytes encode to at most 22 base58 characters.
const eventKeyBytes = 16

// ComputeEventKey computes a deterministic key for events without a source ID.
// Formula: SHA256(lower(title)|currency|epoch_ms|source), first 16 bytes,
// base58-encoded.
func ComputeEventKey(title, currency string, epochMs int64, source string) string {
	data := fmt.Sprintf("%s|%s|%d|%s",
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToUpper(strings.TrimSpace(currency)),
		epochMs,
		strings.ToLower(strings.TrimSpace(source)),
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:eventKeyBytes])
}
