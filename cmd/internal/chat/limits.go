package chat

import "time"

const (
	// Max message body length (runes, after trimming).
	MaxBodyChars = 1000

	// Poll paging.
	DefaultPollLimit = 20
	MaxPageLimit     = 100

	// GET /chats/{roomId} returns at most this many messages.
	HistoryLimit = 100
)

const (
	// Streaming defaults (overridable via Config).
	DefaultStreamInterval = 2 * time.Second
	DefaultStreamLookback = 5 * time.Minute
	DefaultStreamBatch    = 10

	// Per-room cap for the in-memory store.
	memMaxMessagesPerRoom = 10_000
)

// ClampLimit applies the default and the upper bound to a requested page size.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return limit
}
