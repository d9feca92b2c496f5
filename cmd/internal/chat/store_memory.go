package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/ids"
)

// InMemoryStore is a dev/test fallback when no database is configured.
// It keeps at most memMaxMessagesPerRoom messages per room.
type InMemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memRoom
	byID  map[string]*Message
	now   func() time.Time
}

type memRoom struct {
	last time.Time
	msgs []*Message // ordered by (timestamp, id)
}

// MemoryOption configures InMemoryStore behavior.
type MemoryOption func(*InMemoryStore)

// WithMemoryClock overrides the clock used to stamp appended messages.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		rooms: make(map[string]*memRoom),
		byID:  make(map[string]*Message),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Ping always succeeds.
func (s *InMemoryStore) Ping(_ context.Context) error { return nil }

// Append persists a message with a strictly increasing per-room timestamp.
func (s *InMemoryStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	in, err := NormalizeAppend("chat.InMemoryStore.Append", in)
	if err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[in.RoomID]
	if r == nil {
		r = &memRoom{msgs: make([]*Message, 0, 64)}
		s.rooms[in.RoomID] = r
	}

	ts := nextTimestamp(s.now().UTC(), r.last, time.Microsecond)
	id, err := ids.NewULID(ts)
	if err != nil {
		return Message{}, err
	}
	r.last = ts

	m := &Message{
		ID:         id,
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Body:       in.Body,
		Timestamp:  ts,
	}
	r.msgs = append(r.msgs, m)
	s.byID[id] = m

	if len(r.msgs) > memMaxMessagesPerRoom {
		drop := r.msgs[:len(r.msgs)-memMaxMessagesPerRoom]
		for _, d := range drop {
			delete(s.byID, d.ID)
		}
		r.msgs = append([]*Message(nil), r.msgs[len(drop):]...)
	}

	return *m, nil
}

// ListSince returns messages of a room after the cursor, ordered ascending.
func (s *InMemoryStore) ListSince(ctx context.Context, in ListInput) ([]Message, error) {
	if in.RoomID == "" {
		return nil, errors.New("chat: missing room id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := ClampLimit(in.Limit, DefaultPollLimit)

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[in.RoomID]
	if r == nil {
		return nil, nil
	}

	start := 0
	if in.After != nil {
		after := *in.After
		start = sort.Search(len(r.msgs), func(i int) bool { return after.After(*r.msgs[i]) })
	}

	out := make([]Message, 0, limit)
	for _, m := range r.msgs[start:] {
		if len(out) >= limit {
			break
		}
		if !in.NotBefore.IsZero() && m.Timestamp.Before(in.NotBefore) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// Get returns a message by id.
func (s *InMemoryStore) Get(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, opErr("chat.InMemoryStore.Get", ErrNotFound, "message not found")
	}
	return *m, nil
}

// MarkSeen sets seen=true for the given ids and reports how many changed.
func (s *InMemoryStore) MarkSeen(ctx context.Context, msgIDs []string) (int64, error) {
	msgIDs = dedupeIDs(msgIDs)
	if len(msgIDs) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range msgIDs {
		if m, ok := s.byID[id]; ok && !m.Seen {
			m.Seen = true
			n++
		}
	}
	return n, nil
}
