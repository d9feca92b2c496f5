package chatapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	v1 "github.com/Anix003/aura-seer/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

func readSSEEvent(t *testing.T, r *bufio.Reader) v1.StreamEvent {
	t.Helper()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev v1.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode sse event %q: %v", line, err)
		}
		if err := ev.Validate(); err != nil {
			t.Fatalf("invalid event %q: %v", line, err)
		}
		return ev
	}
}

func TestSSE_ConnectedHeartbeatAndMessages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	u1 := env.token(t, "u1", "patient")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/chats/stream?roomId=u1_u2", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u2", "doctor"))
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache-control=%q", cc)
	}

	rd := bufio.NewReader(resp.Body)
	ev := readSSEEvent(t, rd)
	if ev.Type != v1.EventConnected || ev.RoomID != "u1_u2" || ev.UserID != "u2" || ev.Message != v1.ConnectedMessage {
		t.Fatalf("first event: %+v", ev)
	}
	if ev = readSSEEvent(t, rd); ev.Type != v1.EventHeartbeat {
		t.Fatalf("expected heartbeat, got %+v", ev)
	}

	env.do(t, http.MethodPost, "/chats/u1_u2", u1, v1.SendRequest{Message: "hello"})

	for {
		ev = readSSEEvent(t, rd)
		if ev.Type == v1.EventNewMessages {
			break
		}
		if ev.Type != v1.EventHeartbeat {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	if len(ev.Messages) != 1 || ev.Messages[0].Message != "hello" || ev.Messages[0].Sender.Name != "Pat" {
		t.Fatalf("new_messages: %+v", ev.Messages)
	}
	if ev.Messages[0].Seen {
		t.Fatalf("stream must deliver without marking seen")
	}
}

func TestSSE_HandshakeErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	cases := []struct {
		name   string
		token  string
		room   string
		status int
	}{
		{"no token", "", "u1_u2", http.StatusUnauthorized},
		{"missing room", env.token(t, "u1", "patient"), "", http.StatusBadRequest},
		{"stranger", env.token(t, "u3", "patient"), "u1_u2", http.StatusForbidden},
	}
	for _, tc := range cases {
		resp := env.do(t, http.MethodGet, "/chats/stream?roomId="+tc.room, tc.token, nil)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status=%d want %d", tc.name, resp.StatusCode, tc.status)
		}
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
			t.Fatalf("%s: refused handshake must not open a stream", tc.name)
		}
	}
}

func TestWS_StreamsEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/chats/ws?roomId=u1_u2"
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+env.token(t, "u1", "patient"))

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{WSSubprotocol},
		HTTPHeader:   hdr,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	read := func() v1.StreamEvent {
		_, b, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev v1.StreamEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	}

	if ev := read(); ev.Type != v1.EventConnected || ev.UserID != "u1" {
		t.Fatalf("first frame: %+v", ev)
	}
	if ev := read(); ev.Type != v1.EventHeartbeat || ev.Timestamp == nil {
		t.Fatalf("second frame: %+v", ev)
	}
}

func TestWS_RejectsDisallowedOrigin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/chats/ws?roomId=u1_u2", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1", "patient"))

	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d want 403", resp.StatusCode)
	}
}

func TestOriginPolicy(t *testing.T) {
	t.Parallel()

	h := &Handler{cfg: Config{
		WSOriginRequired: true,
		WSAllowedOrigins: []string{"http://localhost:3000", "https://app.aura.health"},
	}}

	cases := []struct {
		origin string
		ok     bool
	}{
		{"", false},
		{"http://localhost:3000", true},
		{"http://localhost:5173", true},
		{"https://app.aura.health", true},
		{"https://evil.example", false},
	}
	for _, tc := range cases {
		r, _ := http.NewRequest(http.MethodGet, "/chats/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		err := h.enforceOrigin(r)
		if tc.ok && err != nil {
			t.Fatalf("origin %q: unexpected err %v", tc.origin, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("origin %q: expected rejection", tc.origin)
		}
	}

	got := deriveOriginPatternsFromAllowedOrigins([]string{"https://b.example:8443", "http://a.example", "http://a.example:80"})
	if strings.Join(got, ",") != "a.example,b.example" {
		t.Fatalf("patterns=%v", got)
	}
	if got := deriveOriginPatternsFromAllowedOrigins([]string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("wildcard patterns=%v", got)
	}
}
