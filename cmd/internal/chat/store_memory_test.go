package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func appendN(t *testing.T, st MessageStore, room, sender, receiver string, n int) []Message {
	t.Helper()

	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := st.Append(context.Background(), AppendInput{
			RoomID:     room,
			SenderID:   sender,
			ReceiverID: receiver,
			Body:       "msg " + string(rune('a'+i%26)),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out = append(out, m)
	}
	return out
}

func TestInMemoryStore_TimestampsStrictlyIncreaseOnFrozenClock(t *testing.T) {
	t.Parallel()

	frozen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := NewInMemoryStore(WithMemoryClock(func() time.Time { return frozen }))

	msgs := appendN(t, st, "u1_u2", "u1", "u2", 5)
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].Timestamp.After(msgs[i-1].Timestamp) {
			t.Fatalf("timestamp %d not after %d: %v <= %v", i, i-1, msgs[i].Timestamp, msgs[i-1].Timestamp)
		}
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids not sortable: %s <= %s", msgs[i].ID, msgs[i-1].ID)
		}
	}
	if msgs[0].Seen {
		t.Fatalf("new messages must be unseen")
	}
}

func TestInMemoryStore_ListSinceOrderedAndRepeatable(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	want := appendN(t, st, "u1_u2", "u1", "u2", 4)
	_ = appendN(t, st, "u3_u4", "u3", "u4", 2)

	first, err := st.ListSince(ctx, ListInput{RoomID: "u1_u2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := st.ListSince(ctx, ListInput{RoomID: "u1_u2"})
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if len(first) != len(want) || len(second) != len(want) {
		t.Fatalf("len=%d/%d want %d", len(first), len(second), len(want))
	}
	for i := range want {
		if first[i].ID != want[i].ID || second[i].ID != want[i].ID {
			t.Fatalf("order mismatch at %d", i)
		}
		if first[i].RoomID != "u1_u2" {
			t.Fatalf("room leak: %s", first[i].RoomID)
		}
	}
}

func TestInMemoryStore_CursorNeverRepeats(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	appendN(t, st, "u1_u2", "u1", "u2", 7)

	var (
		seen   = map[string]bool{}
		cursor *Cursor
		pages  int
	)
	for {
		page, err := st.ListSince(ctx, ListInput{RoomID: "u1_u2", After: cursor, Limit: 3})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) == 0 {
			break
		}
		pages++
		for _, m := range page {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
		}
		c := CursorOf(page[len(page)-1])
		cursor = &c
	}
	if len(seen) != 7 || pages != 3 {
		t.Fatalf("seen=%d pages=%d", len(seen), pages)
	}
}

func TestInMemoryStore_NotBeforeFilters(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	st := NewInMemoryStore(WithMemoryClock(func() time.Time { return clock }))

	appendN(t, st, "u1_u2", "u1", "u2", 2)
	clock = now.Add(10 * time.Minute)
	recent := appendN(t, st, "u1_u2", "u2", "u1", 1)

	got, err := st.ListSince(context.Background(), ListInput{
		RoomID:    "u1_u2",
		NotBefore: clock.Add(-5 * time.Minute),
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != recent[0].ID {
		t.Fatalf("got %d messages, want only the recent one", len(got))
	}
}

func TestInMemoryStore_MarkSeenIdempotent(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	msgs := appendN(t, st, "u1_u2", "u1", "u2", 2)

	n, err := st.MarkSeen(ctx, []string{msgs[0].ID, msgs[0].ID, "", "missing"})
	if err != nil || n != 1 {
		t.Fatalf("first mark: n=%d err=%v", n, err)
	}
	n, err = st.MarkSeen(ctx, []string{msgs[0].ID})
	if err != nil || n != 0 {
		t.Fatalf("second mark: n=%d err=%v", n, err)
	}
	if n, err := st.MarkSeen(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty mark: n=%d err=%v", n, err)
	}

	m, err := st.Get(ctx, msgs[0].ID)
	if err != nil || !m.Seen {
		t.Fatalf("get after mark: seen=%v err=%v", m.Seen, err)
	}
	other, _ := st.Get(ctx, msgs[1].ID)
	if other.Seen {
		t.Fatalf("unrelated message was marked")
	}
}

func TestInMemoryStore_AppendValidation(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", "   ", "Message cannot be empty"},
		{"too long", strings.Repeat("x", MaxBodyChars+1), "Message cannot exceed 1000 characters"},
	}
	for _, tc := range cases {
		_, err := st.Append(ctx, AppendInput{RoomID: "u1_u2", SenderID: "u1", ReceiverID: "u2", Body: tc.body})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err=%v want ErrValidation", tc.name, err)
		}
		if PublicMessage(err) != tc.msg {
			t.Fatalf("%s: msg=%q", tc.name, PublicMessage(err))
		}
	}

	m, err := st.Append(ctx, AppendInput{RoomID: "u1_u2", SenderID: "u1", ReceiverID: "u2", Body: "  " + strings.Repeat("é", MaxBodyChars) + "  "})
	if err != nil {
		t.Fatalf("max-length multibyte body rejected: %v", err)
	}
	if strings.HasPrefix(m.Body, " ") {
		t.Fatalf("body not trimmed")
	}
}

func TestInMemoryStore_GetUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewInMemoryStore().Get(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}
