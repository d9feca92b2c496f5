// Package main provides a CI-friendly smoke test for a running aura-seer.
//
// It validates:
//   - WebSocket handshake, subprotocol selection and the connected event
//   - send over REST
//   - new_messages delivery on the stream (without marking seen)
//   - poll delivery, seen marking and cursor advance
//   - history reflecting the seen flag
//
// Tokens come from `aura-seer token --user <id> --role <role>`.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/Anix003/aura-seer/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "aura.chat.v1"
	maxReadBytes = 1 << 20 // 1MiB
)

type streamClient struct {
	conn  *websocket.Conn
	inbox chan v1.StreamEvent
	errCh chan error
}

func main() {
	var (
		baseURL      = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin       = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		room         = flag.String("room", "", "Room ID (patientId_doctorId)")
		patientToken = flag.String("patient-token", os.Getenv("AURA_SMOKE_PATIENT_TOKEN"), "Patient access token")
		doctorToken  = flag.String("doctor-token", os.Getenv("AURA_SMOKE_DOCTOR_TOKEN"), "Doctor access token")
		text         = flag.String("text", "hello from chat-smoke 👋", "Message text to send")
		timeout      = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*room) == "" || *patientToken == "" || *doctorToken == "" {
		fatalf("-room, -patient-token and -doctor-token are required")
	}

	root := context.Background()
	api := &apiClient{base: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: *timeout}}

	doc := mustConnect(root, api.base, *origin, *room, *doctorToken, *timeout)
	defer closeWS(doc.conn)

	ev := doc.mustReadUntilType(root, v1.EventConnected, *timeout)
	if ev.RoomID != *room {
		fatalf("connected event room=%q want %q", ev.RoomID, *room)
	}
	if *verbose {
		fmt.Printf("stream connected: room=%s user=%s\n", ev.RoomID, ev.UserID)
	}

	// Drain earlier messages so the cursor moves past them.
	_ = mustPoll(root, api, *doctorToken, *room, "")

	sent := mustSend(root, api, *patientToken, *room, *text)
	if *verbose {
		fmt.Printf("sent: id=%s at=%s\n", sent.ID, sent.Timestamp.Format(time.RFC3339Nano))
	}

	// Messages inside the lookback window may arrive first.
	deadline := time.Now().Add(3 * *timeout)
	for {
		ev = doc.mustReadUntilType(root, v1.EventNewMessages, time.Until(deadline))
		if containsID(ev.Messages, sent.ID) {
			break
		}
	}
	for _, m := range ev.Messages {
		if m.ID == sent.ID && m.Seen {
			fatalf("stream delivery must not mark messages seen")
		}
	}

	poll := mustPoll(root, api, *doctorToken, *room, "")
	if !poll.HasNewMessages || !containsID(poll.Messages, sent.ID) {
		fatalf("poll did not return %s: %+v", sent.ID, poll)
	}
	again := mustPoll(root, api, *doctorToken, *room, poll.LastMessageID)
	if again.HasNewMessages {
		fatalf("poll after cursor returned %d messages", len(again.Messages))
	}

	var hist v1.HistoryResponse
	api.mustDo(root, http.MethodGet, "/chats/"+url.PathEscape(*room), *patientToken, nil, http.StatusOK, &hist)
	for _, m := range hist.Messages {
		if m.ID == sent.ID {
			if !m.Seen {
				fatalf("history shows %s unseen after the receiver polled", sent.ID)
			}
			fmt.Println("OK: chat smoke passed")
			return
		}
	}
	fatalf("history does not contain %s", sent.ID)
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) mustDo(ctx context.Context, method, path, token string, body any, wantStatus int, out any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status=%d want %d body=%s", method, path, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func mustSend(ctx context.Context, c *apiClient, token, room, text string) v1.MessageView {
	var out v1.MessageView
	c.mustDo(ctx, http.MethodPost, "/chats/"+url.PathEscape(room), token, v1.SendRequest{Message: text}, http.StatusCreated, &out)
	if out.ID == "" || out.Message != text {
		fatalf("unexpected send response: %+v", out)
	}
	return out
}

func mustPoll(ctx context.Context, c *apiClient, token, room, last string) v1.PollResponse {
	q := url.Values{"roomId": {room}}
	if last != "" {
		q.Set("lastMessageId", last)
	}
	var out v1.PollResponse
	c.mustDo(ctx, http.MethodGet, "/chats/poll?"+q.Encode(), token, nil, http.StatusOK, &out)
	return out
}

func containsID(msgs []v1.MessageView, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, base, origin, room, token string, stepTimeout time.Duration) *streamClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/chats/ws?roomId=" + url.QueryEscape(room)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	if origin != "" {
		hdr.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   hdr,
	})
	if err != nil {
		if resp != nil {
			fatalf("dial failed: %v (status=%d)", err, resp.StatusCode)
		}
		fatalf("dial failed: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		closeWS(conn)
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &streamClient{
		conn:  conn,
		inbox: make(chan v1.StreamEvent, 64),
		errCh: make(chan error, 1),
	}
	go c.readLoop(parent)
	return c
}

func (c *streamClient) readLoop(ctx context.Context) {
	defer close(c.inbox)
	for {
		_, b, err := c.conn.Read(ctx)
		if err != nil {
			c.errCh <- err
			return
		}
		var ev v1.StreamEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			c.errCh <- fmt.Errorf("decode event: %w", err)
			return
		}
		if err := ev.Validate(); err != nil {
			c.errCh <- fmt.Errorf("invalid event %s: %w", b, err)
			return
		}
		c.inbox <- ev
	}
}

// mustReadUntilType skips heartbeats and fails on error events.
func (c *streamClient) mustReadUntilType(parent context.Context, want string, stepTimeout time.Duration) v1.StreamEvent {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", want, ctx.Err())
		case err := <-c.errCh:
			fatalf("stream closed while waiting for %q: %v", want, err)
		case ev, ok := <-c.inbox:
			if !ok {
				fatalf("stream closed while waiting for %q", want)
			}
			switch ev.Type {
			case want:
				return ev
			case v1.EventHeartbeat:
				continue
			case v1.EventError:
				fatalf("server error event: %q", ev.Message)
			default:
				fatalf("unexpected event type: got=%q want=%q", ev.Type, want)
			}
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
