package sui

import (
	"encoding/json"
	"strconv"
	"strings"
)

// placeholderDigest stands in for the transaction digest when a resumed
// cursor token cannot be parsed. The worker must keep running on garbage
// input, so unknown tokens degrade to this deterministic cursor instead of
// failing.
const placeholderDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// EventID is the opaque pagination cursor of the event log: a transaction
// digest plus the event's sequence number inside it.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// ParseCursor restores an EventID from a stored token. JSON tokens decode
// directly; anything else is treated as a bare sequence number on the
// placeholder digest.
func ParseCursor(token string) EventID {
	trimmed := strings.TrimSpace(token)
	if strings.HasPrefix(trimmed, "{") {
		var id EventID
		if err := json.Unmarshal([]byte(trimmed), &id); err == nil && id.TxDigest != "" {
			return id
		}
	}
	return EventID{TxDigest: placeholderDigest, EventSeq: trimmed}
}

// Encode serialises the cursor for checkpoint storage.
func (id EventID) Encode() string {
	raw, err := json.Marshal(id)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Surrogate derives a numeric stand-in from the leading 16 hex digits of
// the digest. It exists only so cursor checkpoints fit the same schema as
// block heights; it carries no ordering meaning.
func (id EventID) Surrogate() uint64 {
	digest := id.TxDigest
	if len(digest) < 16 {
		return 0
	}
	value, err := strconv.ParseUint(digest[:16], 16, 64)
	if err != nil {
		return 0
	}
	return value
}
