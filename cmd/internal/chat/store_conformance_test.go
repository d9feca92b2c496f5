package chat

import (
	"context"
	"testing"
	"time"
)

// runStoreConformance exercises the MessageStore contract against any backend.
// room must be unique per call so backends shared between tests stay isolated.
func runStoreConformance(t *testing.T, st MessageStore, room string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, d, ok := SplitRoomID(room)
	if !ok {
		t.Fatalf("bad test room %q", room)
	}

	var appended []Message
	for i, body := range []string{"one", "two", "three", "four"} {
		sender, receiver := p, d
		if i%2 == 1 {
			sender, receiver = d, p
		}
		m, err := st.Append(ctx, AppendInput{RoomID: room, SenderID: sender, ReceiverID: receiver, Body: body})
		if err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
		if m.ID == "" || m.Timestamp.IsZero() || m.Seen {
			t.Fatalf("append %q returned %+v", body, m)
		}
		if len(appended) > 0 && !m.Timestamp.After(appended[len(appended)-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %q", body)
		}
		appended = append(appended, m)
	}

	all, err := st.ListSince(ctx, ListInput{RoomID: room, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(appended) {
		t.Fatalf("list len=%d want %d", len(all), len(appended))
	}
	for i := range appended {
		if all[i].ID != appended[i].ID || all[i].Body != appended[i].Body {
			t.Fatalf("list[%d]=%s want %s", i, all[i].ID, appended[i].ID)
		}
	}

	c := CursorOf(all[1])
	rest, err := st.ListSince(ctx, ListInput{RoomID: room, After: &c, Limit: 10})
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != appended[2].ID {
		t.Fatalf("list after cursor returned %d messages", len(rest))
	}

	got, err := st.Get(ctx, appended[0].ID)
	if err != nil || got.RoomID != room {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if _, err := st.Get(ctx, "not-a-real-id"); !IsNotFound(err) {
		t.Fatalf("get unknown: err=%v", err)
	}

	ids := []string{appended[0].ID, appended[2].ID}
	n, err := st.MarkSeen(ctx, ids)
	if err != nil || n != 2 {
		t.Fatalf("mark seen: n=%d err=%v", n, err)
	}
	n, err = st.MarkSeen(ctx, ids)
	if err != nil || n != 0 {
		t.Fatalf("mark seen again: n=%d err=%v", n, err)
	}
	after, _ := st.ListSince(ctx, ListInput{RoomID: room, Limit: 10})
	for i, m := range after {
		want := i == 0 || i == 2
		if m.Seen != want {
			t.Fatalf("message %d seen=%v want %v", i, m.Seen, want)
		}
	}

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestInMemoryStore_Conformance(t *testing.T) {
	t.Parallel()

	runStoreConformance(t, NewInMemoryStore(), "pa_dr")
}
