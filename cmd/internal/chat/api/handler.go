// Package chatapi exposes the chat delivery core over HTTP: REST endpoints for
// history, send, poll and start, plus SSE and WebSocket stream adapters.
package chatapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Anix003/aura-seer/cmd/internal/auth"
	"github.com/Anix003/aura-seer/cmd/internal/chat"
	"github.com/Anix003/aura-seer/cmd/internal/directory"
	"github.com/Anix003/aura-seer/cmd/internal/metrics"
	v1 "github.com/Anix003/aura-seer/shared/contracts/chat/v1"
)

// Handler serves the /chats endpoints.
type Handler struct {
	log     *slog.Logger
	svc     *chat.Service
	dir     directory.Directory
	authn   *auth.Authenticator
	metrics *metrics.Metrics
	cfg     Config

	originPatterns []string
}

// Deps groups Handler collaborators. Metrics is optional.
type Deps struct {
	Service       *chat.Service
	Authenticator *auth.Authenticator
	Metrics       *metrics.Metrics
}

// NewHandler constructs a chat API handler.
func NewHandler(log *slog.Logger, deps Deps, cfg Config) (*Handler, error) {
	if deps.Service == nil {
		return nil, errors.New("chatapi: service is required")
	}
	if deps.Authenticator == nil {
		return nil, errors.New("chatapi: authenticator is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	cfg = cfg.normalized()

	return &Handler{
		log:            log,
		svc:            deps.Service,
		dir:            deps.Service.Directory(),
		authn:          deps.Authenticator,
		metrics:        deps.Metrics,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.WSAllowedOrigins),
	}, nil
}

// Register mounts every chat route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /chats/poll", h.handlePoll)
	mux.HandleFunc("GET /chats/stream", h.handleStream)
	mux.HandleFunc("GET /chats/ws", h.handleWS)
	mux.HandleFunc("POST /chats/start", h.handleStart)
	mux.HandleFunc("GET /chats/{roomId}", h.handleHistory)
	mux.HandleFunc("POST /chats/{roomId}", h.handleSend)
}

// authenticate writes 401 and returns ok=false when the request carries no valid token.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := h.authn.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return auth.Principal{}, false
	}
	return p, true
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	roomID := r.PathValue("roomId")

	msgs, err := h.svc.History(r.Context(), p, roomID)
	if err != nil {
		h.writeServiceError(w, "chat.history", err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, v1.HistoryResponse{
		RoomID:   roomID,
		Messages: h.toViews(r.Context(), msgs),
	})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req v1.SendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	m, err := h.svc.Send(r.Context(), p, r.PathValue("roomId"), req.Message)
	if retryAfter, limited := chat.RetryAfter(err); limited {
		h.metrics.RateLimitHits.Inc()
		h.log.Info("chat.send.rate_limited", "user_id", p.UserID, "retry_after", retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if err != nil {
		h.writeServiceError(w, "chat.send", err, "Failed to send message")
		return
	}
	h.metrics.MessagesSent.Inc()
	writeJSON(w, http.StatusCreated, h.toView(r.Context(), m))
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))

	res, err := h.svc.Poll(r.Context(), p, chat.PollInput{
		RoomID:        q.Get("roomId"),
		LastMessageID: q.Get("lastMessageId"),
		Limit:         limit,
	})
	if err != nil {
		h.metrics.PollRequests.WithLabelValues("error").Inc()
		h.writeServiceError(w, "chat.poll", err, "Failed to fetch messages")
		return
	}

	if res.HasNew {
		h.metrics.PollRequests.WithLabelValues("new").Inc()
	} else {
		h.metrics.PollRequests.WithLabelValues("empty").Inc()
	}
	h.metrics.MessagesSeen.Add(float64(res.MarkedSeen))

	writeJSON(w, http.StatusOK, v1.PollResponse{
		Messages:       h.toViews(r.Context(), res.Messages),
		HasNewMessages: res.HasNew,
		LastMessageID:  res.LastMessageID,
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req v1.StartRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	res, err := h.svc.StartChat(r.Context(), p, req.Specialization)
	if err != nil {
		h.writeServiceError(w, "chat.start", err, "Failed to start chat")
		return
	}

	writeJSON(w, http.StatusCreated, v1.StartResponse{
		RoomID: res.RoomID,
		Patient: v1.Party{
			ID:   res.Patient.ID,
			Name: res.Patient.Name,
			Role: string(res.Patient.Role),
		},
		Doctor: v1.Specialist{
			ID:             res.Doctor.ID,
			Name:           res.Doctor.Name,
			Role:           string(res.Doctor.Role),
			Specialization: res.Doctor.Specialization,
		},
		Message: fmt.Sprintf("Chat room created with %s (%s)", res.Doctor.Name, res.Doctor.Specialization),
	})
}

// writeServiceError maps delivery core errors onto HTTP responses.
// Unexpected errors are logged and answered with fallback only.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error, fallback string) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(op+".fail", "err", err)
		writeError(w, status, code, fallback)
		return
	}
	msg := chat.PublicMessage(err)
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeError(w, status, code, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, chat.ErrAccessDenied):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
