package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const defaultBatchTimeout = 10 * time.Millisecond

// KafkaPublisher writes events to one topic, keyed by room id so a room's
// events stay ordered within a partition.
//
// The writer is asynchronous: Publish returns once the event is queued.
// Delivery failures are reported to the failure handler, and the most recent
// one is returned by the next Publish so a wrapping breaker can trip.
type KafkaPublisher struct {
	writer    *kafka.Writer
	timeout   time.Duration
	onFailure func(error)

	mu          sync.Mutex
	deliveryErr error
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithDeliveryFailureHandler is called from the writer goroutine for every
// batch that could not be delivered.
func WithDeliveryFailureHandler(fn func(error)) KafkaOption {
	return func(p *KafkaPublisher) {
		if fn != nil {
			p.onFailure = fn
		}
	}
}

// NewKafkaPublisher constructs a publisher for cfg.Brokers/cfg.Topic.
func NewKafkaPublisher(cfg Config, opts ...KafkaOption) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("events: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: empty topic")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	p := &KafkaPublisher{timeout: cfg.WriteTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		Completion:             p.complete,
	}
	return p, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: b,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return err
	}
	return p.lastDeliveryErr()
}

// complete records the outcome of an async batch.
func (p *KafkaPublisher) complete(messages []kafka.Message, err error) {
	p.mu.Lock()
	p.deliveryErr = err
	p.mu.Unlock()

	if err != nil && p.onFailure != nil {
		p.onFailure(fmt.Errorf("events: deliver %d messages: %w", len(messages), err))
	}
}

func (p *KafkaPublisher) lastDeliveryErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deliveryErr == nil {
		return nil
	}
	return fmt.Errorf("events: previous delivery failed: %w", p.deliveryErr)
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
