package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/auth"
	"github.com/Anix003/aura-seer/cmd/internal/directory"
	"github.com/Anix003/aura-seer/cmd/internal/events"
	"github.com/Anix003/aura-seer/cmd/internal/ratelimit"
)

// Config tunes paging and streaming.
type Config struct {
	PollDefaultLimit int
	PollMaxLimit     int
	HistoryLimit     int

	StreamInterval time.Duration
	StreamLookback time.Duration
	StreamBatch    int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollDefaultLimit: DefaultPollLimit,
		PollMaxLimit:     MaxPageLimit,
		HistoryLimit:     HistoryLimit,
		StreamInterval:   DefaultStreamInterval,
		StreamLookback:   DefaultStreamLookback,
		StreamBatch:      DefaultStreamBatch,
	}
}

// LoadConfigFromEnv reads AURA_POLL_*, AURA_HISTORY_LIMIT and AURA_STREAM_* variables.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.PollDefaultLimit = envPositiveInt("AURA_POLL_DEFAULT_LIMIT", cfg.PollDefaultLimit)
	cfg.PollMaxLimit = envPositiveInt("AURA_POLL_MAX_LIMIT", cfg.PollMaxLimit)
	cfg.HistoryLimit = envPositiveInt("AURA_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.StreamInterval = envPositiveDuration("AURA_STREAM_INTERVAL", cfg.StreamInterval)
	cfg.StreamLookback = envPositiveDuration("AURA_STREAM_LOOKBACK", cfg.StreamLookback)
	cfg.StreamBatch = envPositiveInt("AURA_STREAM_BATCH", cfg.StreamBatch)
	return cfg.normalized()
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PollMaxLimit <= 0 {
		c.PollMaxLimit = d.PollMaxLimit
	}
	if c.PollDefaultLimit <= 0 {
		c.PollDefaultLimit = d.PollDefaultLimit
	}
	if c.PollDefaultLimit > c.PollMaxLimit {
		c.PollDefaultLimit = c.PollMaxLimit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.StreamInterval <= 0 {
		c.StreamInterval = d.StreamInterval
	}
	if c.StreamLookback <= 0 {
		c.StreamLookback = d.StreamLookback
	}
	if c.StreamBatch <= 0 {
		c.StreamBatch = d.StreamBatch
	}
	return c
}

func envPositiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envPositiveDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Service is the delivery core shared by every transport adapter.
type Service struct {
	store MessageStore
	dir   directory.Directory
	pub   events.Publisher
	limit ratelimit.Limiter
	log   *slog.Logger
	cfg   Config
	now   func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithPublisher sets the domain event publisher (default: events.NoopPublisher).
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.pub = p
		}
	}
}

// WithSendLimiter throttles Send per sender (default: ratelimit.Unlimited).
func WithSendLimiter(l ratelimit.Limiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.limit = l
		}
	}
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) { s.cfg = cfg.normalized() }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the delivery core.
func NewService(store MessageStore, dir directory.Directory, log *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("chat: store is required")
	}
	if dir == nil {
		return nil, errors.New("chat: directory is required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		store: store,
		dir:   dir,
		pub:   events.NoopPublisher{},
		limit: ratelimit.Unlimited{},
		log:   log,
		cfg:   DefaultConfig(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Directory returns the user directory used for view enrichment.
func (s *Service) Directory() directory.Directory { return s.dir }

// authorize is the single gate in front of every room operation. It never touches the store.
func (s *Service) authorize(op string, p auth.Principal, roomID string) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", opErr(op, ErrAuthenticationRequired, "Unauthorized")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", opErr(op, ErrValidation, "Room ID is required")
	}
	if _, _, ok := SplitRoomID(roomID); !ok {
		return "", opErr(op, ErrValidation, "Invalid room ID")
	}
	if !AuthorizeParticipant(roomID, p.UserID) {
		return "", opErr(op, ErrAccessDenied, "Access denied to this chat room")
	}
	return roomID, nil
}

// History returns the first HistoryLimit messages of a room in ascending order.
// It does not change read state.
func (s *Service) History(ctx context.Context, p auth.Principal, roomID string) ([]Message, error) {
	const op = "chat.History"

	roomID, err := s.authorize(op, p, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListSince(ctx, ListInput{RoomID: roomID, Limit: s.cfg.HistoryLimit})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return msgs, nil
}

// Send appends body to the room on behalf of p. The receiver is the other participant.
func (s *Service) Send(ctx context.Context, p auth.Principal, roomID, body string) (Message, error) {
	const op = "chat.Send"

	roomID, err := s.authorize(op, p, roomID)
	if err != nil {
		return Message{}, err
	}
	receiver, _ := OtherParticipant(roomID, p.UserID)

	in, err := NormalizeAppend(op, AppendInput{
		RoomID:     roomID,
		SenderID:   p.UserID,
		ReceiverID: receiver,
		Body:       body,
	})
	if err != nil {
		return Message{}, err
	}
	if err := s.allowSend(ctx, op, p.UserID); err != nil {
		return Message{}, err
	}

	m, err := s.store.Append(ctx, in)
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, events.Event{
		Type:       events.TypeMessageCreated,
		RoomID:     m.RoomID,
		MessageIDs: []string{m.ID},
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ActorID:    p.UserID,
		At:         m.Timestamp,
	})
	return m, nil
}

// allowSend charges one send to userID. Only requests that passed
// authorization and validation reach the limiter. A limiter backend failure
// lets the send through.
func (s *Service) allowSend(ctx context.Context, op, userID string) error {
	dec, err := s.limit.Allow(ctx, "send:"+userID)
	if err != nil {
		s.log.Warn("chat.ratelimit.fail", "user_id", userID, "err", err)
		return nil
	}
	if !dec.Allowed {
		return LimitError{Op: op, RetryAfter: dec.RetryAfter}
	}
	return nil
}

// PollInput is a poll request.
type PollInput struct {
	RoomID        string
	LastMessageID string
	Limit         int
}

// PollResult is a poll response. Messages carry their seen flag as read,
// before this poll marked them.
type PollResult struct {
	Messages      []Message
	HasNew        bool
	LastMessageID string
	MarkedSeen    int64
}

// Poll returns the messages after the client cursor and marks the ones
// addressed to p as seen.
func (s *Service) Poll(ctx context.Context, p auth.Principal, in PollInput) (PollResult, error) {
	const op = "chat.Poll"

	roomID, err := s.authorize(op, p, in.RoomID)
	if err != nil {
		return PollResult{}, err
	}

	lastID := strings.TrimSpace(in.LastMessageID)
	after, err := s.resolveCursor(ctx, roomID, lastID)
	if err != nil {
		return PollResult{}, fmt.Errorf("%s: %w", op, err)
	}

	msgs, err := s.store.ListSince(ctx, ListInput{
		RoomID: roomID,
		After:  after,
		Limit:  s.pollLimit(in.Limit),
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var unseen []string
	for _, m := range msgs {
		if m.ReceiverID == p.UserID && !m.Seen {
			unseen = append(unseen, m.ID)
		}
	}

	res := PollResult{
		Messages:      msgs,
		HasNew:        len(msgs) > 0,
		LastMessageID: lastID,
	}
	if len(msgs) > 0 {
		res.LastMessageID = msgs[len(msgs)-1].ID
	}

	if len(unseen) > 0 {
		n, err := s.store.MarkSeen(ctx, unseen)
		if err != nil {
			return PollResult{}, fmt.Errorf("%s: %w", op, err)
		}
		res.MarkedSeen = n
		s.publish(ctx, events.Event{
			Type:       events.TypeMessagesSeen,
			RoomID:     roomID,
			MessageIDs: unseen,
			ActorID:    p.UserID,
			At:         s.now(),
		})
	}
	return res, nil
}

// resolveCursor maps a client message id to a store position. Unknown ids and
// ids from other rooms resolve to nil (read from the beginning).
func (s *Service) resolveCursor(ctx context.Context, roomID, id string) (*Cursor, error) {
	if id == "" {
		return nil, nil
	}
	m, err := s.store.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if m.RoomID != roomID {
		return nil, nil
	}
	c := CursorOf(m)
	return &c, nil
}

func (s *Service) pollLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.PollDefaultLimit
	}
	if limit > s.cfg.PollMaxLimit {
		return s.cfg.PollMaxLimit
	}
	return limit
}

// StartResult is the outcome of StartChat.
type StartResult struct {
	RoomID  string
	Patient directory.User
	Doctor  directory.User
}

// StartChat matches the requesting patient with the oldest available specialist.
func (s *Service) StartChat(ctx context.Context, p auth.Principal, specialization string) (StartResult, error) {
	const op = "chat.StartChat"

	if strings.TrimSpace(p.UserID) == "" {
		return StartResult{}, opErr(op, ErrAuthenticationRequired, "Unauthorized")
	}

	patient, err := s.dir.Get(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return StartResult{}, opErr(op, ErrAccessDenied, "Only patients can start chats")
		}
		return StartResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if patient.Role != directory.RolePatient {
		return StartResult{}, opErr(op, ErrAccessDenied, "Only patients can start chats")
	}

	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return StartResult{}, opErr(op, ErrValidation, "Specialization is required")
	}

	doctor, err := s.dir.FindSpecialist(ctx, specialization)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return StartResult{}, opErr(op, ErrNotFound,
				fmt.Sprintf("No %s specialist available at the moment. Please try again later.", specialization))
		}
		return StartResult{}, fmt.Errorf("%s: %w", op, err)
	}

	roomID, err := DeriveRoomID(patient.ID, doctor.ID)
	if err != nil {
		return StartResult{}, err
	}

	s.log.Info("chat.start.ok",
		"room_id", roomID,
		"patient_id", patient.ID,
		"doctor_id", doctor.ID,
	)
	return StartResult{RoomID: roomID, Patient: patient, Doctor: doctor}, nil
}

// Ready pings the message store.
func (s *Service) Ready(ctx context.Context) error { return s.store.Ping(ctx) }

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("chat.event.publish.fail",
			"type", ev.Type,
			"room_id", ev.RoomID,
			"err", err,
		)
	}
}
