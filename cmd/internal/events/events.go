// Package events publishes chat domain events (message created, messages seen)
// to downstream consumers such as notification services.
package events

import (
	"context"
	"os"
	"strings"
	"time"
)

// Event types.
const (
	TypeMessageCreated = "message.created"
	TypeMessagesSeen   = "messages.seen"
)

// Event is the JSON payload written to the event stream.
type Event struct {
	Type       string    `json:"type"`
	RoomID     string    `json:"roomId"`
	MessageIDs []string  `json:"messageIds"`
	SenderID   string    `json:"senderId,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and never fail the originating request on them.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// Config controls the Kafka publisher and its circuit breaker.
type Config struct {
	Brokers []string
	Topic   string

	WriteTimeout time.Duration
	BatchTimeout time.Duration

	// Breaker opens after BreakerMaxFailures consecutive failures and half-opens after BreakerTimeout.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// LoadConfigFromEnv reads AURA_KAFKA_* variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Topic:              "chat.events",
		WriteTimeout:       2 * time.Second,
		BatchTimeout:       defaultBatchTimeout,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
	for _, b := range strings.Split(os.Getenv("AURA_KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
	if v := strings.TrimSpace(os.Getenv("AURA_KAFKA_TOPIC")); v != "" {
		cfg.Topic = v
	}
	if v := strings.TrimSpace(os.Getenv("AURA_KAFKA_WRITE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WriteTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AURA_KAFKA_BATCH_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BatchTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AURA_KAFKA_BREAKER_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BreakerTimeout = d
		}
	}
	return cfg
}
