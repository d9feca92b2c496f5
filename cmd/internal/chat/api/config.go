package chatapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
	wsDefaultWriteTimeout   = 5 * time.Second
)

// Config controls chat API transport behavior.
type Config struct {
	MaxBodyBytes int64

	// WebSocket origin policy. When OriginRequired is false a missing Origin
	// header is accepted (non-browser clients); a present one must still match.
	WSOriginRequired bool
	WSAllowedOrigins []string
	WSWriteTimeout   time.Duration

	// WSDevInsecure disables coder/websocket's own origin check. Dev only.
	WSDevInsecure bool
}

// LoadConfigFromEnv loads chat API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:     envInt64("AURA_API_MAX_BODY_BYTES", 64<<10),
		WSOriginRequired: envBool("AURA_WS_ORIGIN_REQUIRED", false),
		WSAllowedOrigins: envCSV("AURA_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		WSWriteTimeout:   envDuration("AURA_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout),
		WSDevInsecure:    envBool("AURA_WS_DEV_INSECURE", false),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.WSWriteTimeout <= 0 {
		c.WSWriteTimeout = wsDefaultWriteTimeout
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
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

func envCSV(key, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
