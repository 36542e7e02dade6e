package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// DedupKey derives the dedup-set member for an article: a SHA-256 hash over
// id and url together. The same id re-announced under a different url (or
// the same url under a different id) yields a different key.
func DedupKey(id, url string) string {
	sum := sha256.Sum256([]byte(id + "|" + url))
	return hex.EncodeToString(sum[:])
}
