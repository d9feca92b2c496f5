package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Message is the canonical persisted chat message.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	ReceiverID string
	Body       string
	Timestamp  time.Time
	Seen       bool
}

// Cursor is a resolved position in a room: the store-assigned timestamp and id of a message.
// Ordering always compares (Timestamp, ID); client-supplied times never reach it.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// CursorOf returns the position of m.
func CursorOf(m Message) Cursor { return Cursor{Timestamp: m.Timestamp, ID: m.ID} }

// After reports whether m sorts strictly after c.
func (c Cursor) After(m Message) bool {
	if m.Timestamp.Equal(c.Timestamp) {
		return m.ID > c.ID
	}
	return m.Timestamp.After(c.Timestamp)
}

// MessageStore persists and queries room messages.
//
// Requirements:
//   - Timestamps are assigned at Append and strictly increase per room
//   - ListSince is ordered by (timestamp, id) ASC
//   - MarkSeen is idempotent and only ever sets seen=true
//   - No caching: every call reads current store state
type MessageStore interface {
	Append(ctx context.Context, in AppendInput) (Message, error)
	ListSince(ctx context.Context, in ListInput) ([]Message, error)
	Get(ctx context.Context, id string) (Message, error)
	MarkSeen(ctx context.Context, ids []string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// AppendInput describes a message append request.
type AppendInput struct {
	RoomID     string
	SenderID   string
	ReceiverID string
	Body       string
}

// ListInput describes a ListSince query.
type ListInput struct {
	RoomID string

	// After excludes everything at or before this position. Nil means from the beginning.
	After *Cursor

	// NotBefore excludes messages older than this instant when non-zero.
	NotBefore time.Time

	Limit int
}

// NormalizeAppend validates in and returns it with a trimmed body.
func NormalizeAppend(op string, in AppendInput) (AppendInput, error) {
	in.RoomID = strings.TrimSpace(in.RoomID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Body = strings.TrimSpace(in.Body)

	if in.RoomID == "" || in.SenderID == "" || in.ReceiverID == "" {
		return AppendInput{}, opErr(op, ErrValidation, "room, sender and receiver are required")
	}
	if in.Body == "" {
		return AppendInput{}, opErr(op, ErrValidation, "Message cannot be empty")
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyChars {
		return AppendInput{}, opErr(op, ErrValidation, "Message cannot exceed 1000 characters")
	}
	return in, nil
}

// nextTimestamp returns now, bumped past last when the clock did not advance.
func nextTimestamp(now, last time.Time, unit time.Duration) time.Time {
	now = now.Truncate(unit)
	if !last.IsZero() && !now.After(last) {
		return last.Add(unit)
	}
	return now
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
