package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/Anix003/aura-seer/cmd/internal/events"
	"github.com/Anix003/aura-seer/cmd/internal/metrics"
	"github.com/Anix003/aura-seer/cmd/internal/ratelimit"
)

// newLimiter picks the send limiter: disabled, Redis-backed or in-process.
// The returned closer releases the Redis client, if any.
func newLimiter(ctx context.Context, cfg ratelimit.Config, log *slog.Logger) (ratelimit.Limiter, io.Closer, error) {
	if cfg.Limit <= 0 {
		log.Info("ratelimit.disabled")
		return ratelimit.Unlimited{}, nil, nil
	}
	if cfg.RedisURL == "" {
		log.Info("ratelimit.enabled", "backend", "memory", "limit", cfg.Limit, "window", cfg.Window)
		return ratelimit.NewMemoryLimiter(cfg.Limit, cfg.Window), nil, nil
	}

	rdb, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	l, err := ratelimit.NewRedisLimiter(rdb, cfg.Prefix, cfg.Limit, cfg.Window)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	log.Info("ratelimit.enabled", "backend", "redis", "limit", cfg.Limit, "window", cfg.Window)
	return l, rdb, nil
}

// newPublisher returns a breaker-guarded Kafka publisher when brokers are
// configured, else a no-op publisher.
func newPublisher(cfg events.Config, m *metrics.Metrics, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled() {
		log.Info("events.disabled")
		return events.NoopPublisher{}, nil
	}
	kp, err := events.NewKafkaPublisher(cfg, events.WithDeliveryFailureHandler(func(err error) {
		log.Warn("events.delivery.fail", "topic", cfg.Topic, "err", err)
	}))
	if err != nil {
		return nil, err
	}
	log.Info("events.enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "batch_timeout", cfg.BatchTimeout)
	return &countingPublisher{
		next:   events.NewBreakerPublisher(kp, cfg, log),
		failed: m.EventPublishErr.Inc,
	}, nil
}

// countingPublisher records publish failures in metrics.
type countingPublisher struct {
	next   events.Publisher
	failed func()
}

func (p *countingPublisher) Publish(ctx context.Context, ev events.Event) error {
	err := p.next.Publish(ctx, ev)
	if err != nil {
		p.failed()
	}
	return err
}

func (p *countingPublisher) Close() error { return p.next.Close() }
