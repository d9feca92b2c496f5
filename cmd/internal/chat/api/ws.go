package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/chat"

	"github.com/coder/websocket"
)

// WSSubprotocol is the subprotocol clients must offer on /chats/ws.
const WSSubprotocol = "aura.chat.v1"

// handleWS serves GET /chats/ws: the same delivery stream as SSE, one JSON
// event per text frame. Client frames are not read; any client frame or a
// close ends the stream.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := h.enforceOrigin(r); err != nil {
		h.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	p, err := h.authn.Authenticate(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	st, err := h.svc.OpenStream(p, r.URL.Query().Get("roomId"))
	if err != nil {
		writeHandshakeError(w, err)
		return
	}

	// Deadlines carry over to the hijacked connection.
	clearDeadlines(h, http.NewResponseController(w))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{WSSubprotocol},
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.cfg.WSDevInsecure,
	})
	if err != nil {
		h.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != WSSubprotocol {
		h.log.Info("ws.reject.subprotocol", "got", sp, "want", WSSubprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	// CloseRead cancels ctx when the peer closes or sends a frame.
	ctx := conn.CloseRead(r.Context())

	h.metrics.StreamsOpen.WithLabelValues("ws").Inc()
	defer h.metrics.StreamsOpen.WithLabelValues("ws").Dec()

	h.log.Info("chat.stream.open", "transport", "ws", "room_id", st.RoomID(), "user_id", p.UserID)
	err = st.Run(ctx, &wsSink{h: h, conn: conn, timeout: h.cfg.WSWriteTimeout})
	h.log.Info("chat.stream.close", "transport", "ws", "room_id", st.RoomID(), "user_id", p.UserID,
		"close_status", websocket.CloseStatus(err), "err", err)
}

type wsSink struct {
	h       *Handler
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *wsSink) Emit(parent context.Context, ev chat.StreamEvent) error {
	wire := s.h.toWire(parent, ev)
	b, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return err
	}
	s.h.metrics.StreamEvents.WithLabelValues(wire.Type).Inc()
	return nil
}

// ---- origin policy ----

func (h *Handler) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if h.cfg.WSOriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(h.cfg.WSAllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range h.cfg.WSAllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins keeps websocket.Accept's cross-origin
// check in agreement with enforceOrigin.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "*" {
			return []string{"*"}
		}
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
