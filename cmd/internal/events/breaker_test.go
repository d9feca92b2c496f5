package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

type failingPublisher struct {
	calls int
	err   error
}

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return f.err
}

func (f *failingPublisher) Close() error { return nil }

func TestBreakerPublisher_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	next := &failingPublisher{err: errors.New("broker down")}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewBreakerPublisher(next, Config{BreakerMaxFailures: 3, BreakerTimeout: time.Minute}, log)

	ev := Event{Type: TypeMessageCreated, RoomID: "u1_u2", MessageIDs: []string{"m1"}}
	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), ev); err == nil {
			t.Fatalf("publish %d: expected error", i)
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("state=%v want open", p.State())
	}

	err := p.Publish(context.Background(), ev)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err=%v want ErrOpenState", err)
	}
	if next.calls != 3 {
		t.Fatalf("next called %d times, want 3", next.calls)
	}
}

func TestBreakerPublisher_PassesThroughSuccess(t *testing.T) {
	t.Parallel()

	next := &failingPublisher{}
	p := NewBreakerPublisher(next, Config{}, nil)
	if err := p.Publish(context.Background(), Event{Type: TypeMessagesSeen}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if p.State() != gobreaker.StateClosed {
		t.Fatalf("state=%v want closed", p.State())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AURA_KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("AURA_KAFKA_TOPIC", "clinic.chat")

	cfg := LoadConfigFromEnv()
	if !cfg.Enabled() || len(cfg.Brokers) != 2 || cfg.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.Topic != "clinic.chat" {
		t.Fatalf("topic=%q", cfg.Topic)
	}

	t.Setenv("AURA_KAFKA_BROKERS", "")
	if LoadConfigFromEnv().Enabled() {
		t.Fatalf("expected disabled without brokers")
	}
}
