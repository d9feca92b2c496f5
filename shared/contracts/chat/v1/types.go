// Package v1 defines the chat delivery wire contract: message views and the
// JSON events pushed over SSE and WebSocket streams.
//
// It is shared between server and clients (see tools/scripts/chat-smoke.go).
package v1

import (
	"errors"
	"fmt"
	"time"
)

// Stream event types (wire-stable).
const (
	// EventConnected is the first event of every stream.
	EventConnected = "connected"
	// EventNewMessages carries a batch of recent messages.
	EventNewMessages = "new_messages"
	// EventHeartbeat is sent once per tick with the server time.
	EventHeartbeat = "heartbeat"
	// EventError reports a failed tick; the stream stays open.
	EventError = "error"
)

// ConnectedMessage is the human-readable text of the connected event.
const ConnectedMessage = "Connected to chat room"

// FetchFailedMessage is the text of the error event emitted when a tick query fails.
const FetchFailedMessage = "Failed to fetch messages"

// Party is the display projection of a sender or receiver.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// MessageView is the client-facing message shape used by every endpoint.
type MessageView struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
	Sender    Party     `json:"sender"`
	Receiver  Party     `json:"receiver"`
}

// StreamEvent is one pushed event. Fields are populated per Type.
type StreamEvent struct {
	Type      string        `json:"type"`
	Message   string        `json:"message,omitempty"`
	RoomID    string        `json:"roomId,omitempty"`
	UserID    string        `json:"userId,omitempty"`
	Messages  []MessageView `json:"messages,omitempty"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
}

// Validate checks that the fields required by Type are present.
func (e StreamEvent) Validate() error {
	switch e.Type {
	case EventConnected:
		if e.RoomID == "" || e.UserID == "" {
			return errors.New("connected: missing roomId or userId")
		}
	case EventNewMessages:
		if len(e.Messages) == 0 {
			return errors.New("new_messages: empty batch")
		}
	case EventHeartbeat:
		if e.Timestamp == nil || e.Timestamp.IsZero() {
			return errors.New("heartbeat: missing timestamp")
		}
	case EventError:
		if e.Message == "" {
			return errors.New("error: missing message")
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	return nil
}

// PollResponse is the body of GET /chats/poll.
type PollResponse struct {
	Messages       []MessageView `json:"messages"`
	HasNewMessages bool          `json:"hasNewMessages"`
	LastMessageID  string        `json:"lastMessageId,omitempty"`
}

// HistoryResponse is the body of GET /chats/{roomId}.
type HistoryResponse struct {
	RoomID   string        `json:"roomId"`
	Messages []MessageView `json:"messages"`
}

// SendRequest is the body of POST /chats/{roomId}.
type SendRequest struct {
	Message string `json:"message"`
}

// StartRequest is the body of POST /chats/start.
type StartRequest struct {
	Specialization string `json:"specialization"`
}

// Specialist is the doctor projection returned by POST /chats/start.
type Specialist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
}

// StartResponse is the body of POST /chats/start.
type StartResponse struct {
	RoomID  string     `json:"roomId"`
	Patient Party      `json:"patient"`
	Doctor  Specialist `json:"doctor"`
	Message string     `json:"message"`
}
