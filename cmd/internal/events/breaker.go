package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerPublisher guards another Publisher with a circuit breaker.
// While open, Publish fails fast with gobreaker.ErrOpenState.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next. A nil log discards state-change logs.
func NewBreakerPublisher(next Publisher, cfg Config, log *slog.Logger) *BreakerPublisher {
	if log == nil {
		log = slog.Default()
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "events.publisher",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("events.breaker.state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerPublisher{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (p *BreakerPublisher) Publish(ctx context.Context, ev Event) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.next.Publish(ctx, ev)
	})
	return err
}

// State returns the current breaker state.
func (p *BreakerPublisher) State() gobreaker.State { return p.cb.State() }

func (p *BreakerPublisher) Close() error { return p.next.Close() }
