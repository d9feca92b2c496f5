package events

import (
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestNewKafkaPublisher_WriterDoesNotBlockCallers(t *testing.T) {
	t.Parallel()

	p, err := NewKafkaPublisher(Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "chat.events", WriteTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	if !p.writer.Async {
		t.Fatalf("writer must be async")
	}
	if p.writer.BatchTimeout != defaultBatchTimeout {
		t.Fatalf("batch timeout=%v want %v", p.writer.BatchTimeout, defaultBatchTimeout)
	}
	if p.writer.Completion == nil {
		t.Fatalf("completion callback not installed")
	}
}

func TestNewKafkaPublisher_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaPublisher(Config{Topic: "t"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaPublisher(Config{Brokers: []string{"b:9092"}}); err == nil {
		t.Fatalf("expected error without topic")
	}
}

func TestKafkaPublisher_DeliveryFailureSurfacesUntilNextSuccess(t *testing.T) {
	t.Parallel()

	var reported []error
	p, err := NewKafkaPublisher(Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "chat.events"},
		WithDeliveryFailureHandler(func(err error) { reported = append(reported, err) }))
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	if err := p.lastDeliveryErr(); err != nil {
		t.Fatalf("fresh publisher reports %v", err)
	}

	down := errors.New("broker unreachable")
	p.complete([]kafka.Message{{}, {}}, down)
	if err := p.lastDeliveryErr(); !errors.Is(err, down) {
		t.Fatalf("lastDeliveryErr=%v want %v", err, down)
	}
	if len(reported) != 1 || !errors.Is(reported[0], down) {
		t.Fatalf("reported=%v", reported)
	}

	p.complete([]kafka.Message{{}}, nil)
	if err := p.lastDeliveryErr(); err != nil {
		t.Fatalf("successful batch must clear the failure, got %v", err)
	}
	if len(reported) != 1 {
		t.Fatalf("success must not be reported, got %d reports", len(reported))
	}
}

func TestLoadConfigFromEnv_BatchTimeout(t *testing.T) {
	t.Setenv("AURA_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("AURA_KAFKA_BATCH_TIMEOUT", "25ms")

	cfg := LoadConfigFromEnv()
	if len(cfg.Brokers) != 2 || cfg.BatchTimeout != 25*time.Millisecond {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}
