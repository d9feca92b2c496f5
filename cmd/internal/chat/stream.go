package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/auth"
)

// StreamState is the lifecycle state of a Stream.
type StreamState int32

const (
	StreamConnecting StreamState = iota
	StreamConnected
	StreamTicking
	StreamEmitting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamTicking:
		return "ticking"
	case StreamEmitting:
		return "emitting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream event kinds. The string values are the wire "type" field.
const (
	StreamEventConnected   = "connected"
	StreamEventNewMessages = "new_messages"
	StreamEventHeartbeat   = "heartbeat"
	StreamEventError       = "error"
)

// StreamEvent is one event produced by a Stream. Adapters render it to the wire.
type StreamEvent struct {
	Type     string
	RoomID   string
	UserID   string
	Messages []Message
	At       time.Time
}

// EventSink receives stream events. An error return is treated as a disconnect.
type EventSink interface {
	Emit(ctx context.Context, ev StreamEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev StreamEvent) error

func (f SinkFunc) Emit(ctx context.Context, ev StreamEvent) error { return f(ctx, ev) }

// Stream pushes recent room messages to one connection on a fixed tick.
// Each Stream owns its ticker and cursor; nothing is shared between connections.
type Stream struct {
	store MessageStore
	log   *slog.Logger
	now   func() time.Time

	roomID string
	userID string

	interval time.Duration
	lookback time.Duration
	batch    int

	state  atomic.Int32
	cursor *Cursor
}

// OpenStream authorizes p on roomID and returns an unstarted stream.
// A denied stream never reaches Connected.
func (s *Service) OpenStream(p auth.Principal, roomID string) (*Stream, error) {
	const op = "chat.OpenStream"

	roomID, err := s.authorize(op, p, roomID)
	if err != nil {
		return nil, err
	}
	return &Stream{
		store:    s.store,
		log:      s.log,
		now:      s.now,
		roomID:   roomID,
		userID:   p.UserID,
		interval: s.cfg.StreamInterval,
		lookback: s.cfg.StreamLookback,
		batch:    s.cfg.StreamBatch,
	}, nil
}

// RoomID returns the authorized room.
func (st *Stream) RoomID() string { return st.roomID }

// State returns the current lifecycle state.
func (st *Stream) State() StreamState { return StreamState(st.state.Load()) }

func (st *Stream) setState(s StreamState) { st.state.Store(int32(s)) }

// Run emits connected, then on every tick any new messages followed by a heartbeat.
// It returns nil when ctx is done, or the sink error that ended the stream.
// Run never changes read state.
func (st *Stream) Run(ctx context.Context, sink EventSink) error {
	defer st.setState(StreamClosed)

	if err := ctx.Err(); err != nil {
		return nil
	}

	if err := sink.Emit(ctx, StreamEvent{
		Type:   StreamEventConnected,
		RoomID: st.roomID,
		UserID: st.userID,
		At:     st.now(),
	}); err != nil {
		return st.sinkErr(ctx, err)
	}
	st.setState(StreamConnected)

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// Ticks queued behind a slow emit must not query after cancellation.
		if ctx.Err() != nil {
			return nil
		}
		st.setState(StreamTicking)

		if err := st.tick(ctx, sink); err != nil {
			return st.sinkErr(ctx, err)
		}
		st.setState(StreamConnected)
	}
}

func (st *Stream) tick(ctx context.Context, sink EventSink) error {
	now := st.now()

	msgs, err := st.store.ListSince(ctx, ListInput{
		RoomID:    st.roomID,
		After:     st.cursor,
		NotBefore: now.Add(-st.lookback),
		Limit:     st.batch,
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		st.log.Warn("chat.stream.tick.fail",
			"room_id", st.roomID,
			"user_id", st.userID,
			"err", err,
		)
		st.setState(StreamEmitting)
		if err := sink.Emit(ctx, StreamEvent{Type: StreamEventError, RoomID: st.roomID, At: now}); err != nil {
			return err
		}
	case len(msgs) > 0:
		st.setState(StreamEmitting)
		if err := sink.Emit(ctx, StreamEvent{Type: StreamEventNewMessages, RoomID: st.roomID, Messages: msgs, At: now}); err != nil {
			return err
		}
		c := CursorOf(msgs[len(msgs)-1])
		st.cursor = &c
	}

	st.setState(StreamEmitting)
	return sink.Emit(ctx, StreamEvent{Type: StreamEventHeartbeat, RoomID: st.roomID, At: now})
}

// sinkErr folds errors caused by cancellation into a clean close.
func (st *Stream) sinkErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	st.log.Info("chat.stream.sink.closed",
		"room_id", st.roomID,
		"user_id", st.userID,
		"err", err,
	)
	return err
}
