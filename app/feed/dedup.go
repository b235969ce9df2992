package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const DedupHashLength = 32

// DedupKey picks the identity of an entry: its GUID, else its link, else its title.
func DedupKey(e Entry) string {
	for _, candidate := range []string{e.GUID, e.Link, e.Title} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}

// DedupHash is the idempotency key of an entry within a source. It is stable across
// polls and feed reordering. An entry without any identity yields an empty hash and
// must not be stored.
func DedupHash(sourceID string, e Entry) string {
	key := DedupKey(e)
	if key == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(sourceID + "|" + key))
	return hex.EncodeToString(hash[:])[:DedupHashLength]
}
