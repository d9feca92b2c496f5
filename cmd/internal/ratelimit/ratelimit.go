// Package ratelimit throttles chat sends per user.
package ratelimit

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the next event for key is permitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config controls send throttling.
type Config struct {
	// Limit events per Window per key. Limit <= 0 disables throttling.
	Limit  int
	Window time.Duration

	// RedisURL selects the shared Redis limiter when set.
	RedisURL string
	Prefix   string
}

// LoadConfigFromEnv reads AURA_SEND_RATE, AURA_SEND_WINDOW and AURA_REDIS_URL.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Limit:    30,
		Window:   time.Minute,
		RedisURL: strings.TrimSpace(os.Getenv("AURA_REDIS_URL")),
		Prefix:   "aura:rl:send",
	}
	if v := strings.TrimSpace(os.Getenv("AURA_SEND_RATE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AURA_SEND_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Window = d
		}
	}
	return cfg
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
