package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/chat"
)

// handleStream serves GET /chats/stream as Server-Sent Events.
// Handshake failures are plain-text responses; once the stream is open every
// event is a "data: {json}" frame.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
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

	rc := http.NewResponseController(w)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	clearDeadlines(h, rc)
	if err := rc.Flush(); err != nil {
		h.log.Warn("chat.stream.flush.fail", "err", err)
		return
	}

	h.metrics.StreamsOpen.WithLabelValues("sse").Inc()
	defer h.metrics.StreamsOpen.WithLabelValues("sse").Dec()

	h.log.Info("chat.stream.open", "transport", "sse", "room_id", st.RoomID(), "user_id", p.UserID)
	err = st.Run(r.Context(), &sseSink{h: h, w: w, rc: rc})
	h.log.Info("chat.stream.close", "transport", "sse", "room_id", st.RoomID(), "user_id", p.UserID, "err", err)
}

type sseSink struct {
	h  *Handler
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseSink) Emit(ctx context.Context, ev chat.StreamEvent) error {
	wire := s.h.toWire(ctx, ev)
	b, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	s.h.metrics.StreamEvents.WithLabelValues(wire.Type).Inc()
	return nil
}

// writeHandshakeError answers a refused stream open with a plain-text status.
func writeHandshakeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrAuthenticationRequired):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, chat.ErrValidation):
		http.Error(w, chat.PublicMessage(err), http.StatusBadRequest)
	case errors.Is(err, chat.ErrAccessDenied):
		http.Error(w, "Access denied", http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// clearDeadlines lifts the server read and write timeouts for a long-lived
// stream. An expired read deadline would cancel the request context.
func clearDeadlines(h *Handler, rc *http.ResponseController) {
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn("chat.stream.deadline.fail", "which", "read", "err", err)
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn("chat.stream.deadline.fail", "which", "write", "err", err)
	}
}
