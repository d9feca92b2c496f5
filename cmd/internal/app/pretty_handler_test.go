package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	if got, want := stripANSI(in), "INFO plain ERR"; got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_RequestLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("transport", "sse").Warn("http.request",
		"method", "get",
		"route", "GET /chats/{roomId}",
		"status", 403,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"request_id", "abc",
		"err", "access denied",
	)

	line := buf.String()
	for _, want := range []string{
		" WARN  http.request ",
		"transport=sse",
		"method=GET",
		`route="GET /chats/{roomId}"`,
		"status=403",
		"class=4xx",
		"duration=12ms",
		"req=abc",
		`err="access denied"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("record must end with newline")
	}
}

func TestPrettyHandler_ColorIsStrippable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.Error("chat.stream.tick.fail", "room_id", "p1_d1", "status", 500)

	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected ANSI codes in %q", out)
	}
	plain := stripANSI(out)
	if !strings.Contains(plain, " ERROR chat.stream.tick.fail") || !strings.Contains(plain, "room_id=p1_d1") || !strings.Contains(plain, "status=500") {
		t.Fatalf("unexpected plain output %q", plain)
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).WithGroup("stream")
	log.Info("tick", slog.Group("cursor", "id", "01J"))

	if !strings.Contains(buf.String(), "stream.cursor.id=01J") {
		t.Fatalf("grouped key missing in %q", buf.String())
	}
}

func TestPrettyHandler_AttrsKeepTheirGroupScope(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true}, false))
	log.With("room_id", "p1_d1").WithGroup("stream").With("batch", 10).Info("chat.stream.open", "user_id", "d1")

	line := buf.String()
	for _, want := range []string{"room_id=p1_d1", "stream.batch=10", "stream.user_id=d1", "src=pretty_handler_test.go:"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "stream.room_id") {
		t.Fatalf("attrs added before the group must not be prefixed: %q", line)
	}
}

func TestColorizeStatusCode(t *testing.T) {
	t.Parallel()

	if got := colorizeStatusCode(201, false); got != "201" {
		t.Fatalf("plain=%q", got)
	}
	if got := colorizeStatusCode(503, true); got != ansiRed+"503"+ansiReset {
		t.Fatalf("colored=%q", got)
	}
}
