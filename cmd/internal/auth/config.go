package auth

import (
	"os"
	"strings"
	"time"
)

// DefaultCookieName is the cookie the account service sets on login.
const DefaultCookieName = "auth-token"

// Mode selects the access-token format.
type Mode string

const (
	ModeJWT    Mode = "jwt"
	ModePaseto Mode = "paseto"
)

// Config defines runtime configuration for access-token verification.
type Config struct {
	Mode       Mode
	CookieName string

	// Issuer is checked on PASETO tokens.
	Issuer string

	// AccessTokenTTL is used when this service mints tokens (CLI/dev only).
	AccessTokenTTL time.Duration

	ClockSkew time.Duration

	// JWTSecret is the HS256 shared secret (jwt mode).
	JWTSecret string

	// PASETO v4.public keys (paseto mode). The secret key also enables Issue.
	PasetoV4SecretKeyHex string
	PasetoV4PublicKeyHex string
}

// DefaultConfig returns defaults matching the account service.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeJWT,
		CookieName:     DefaultCookieName,
		Issuer:         "aura-seer",
		AccessTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads auth configuration from environment variables.
//
// Optional:
//   - AURA_AUTH_MODE (jwt|paseto)
//   - AURA_AUTH_COOKIE
//   - AURA_AUTH_ISSUER
//   - AURA_JWT_EXPIRES_IN
//   - AURA_AUTH_CLOCK_SKEW
//
// Required per mode:
//   - jwt: AURA_JWT_SECRET (JWT_SECRET is accepted as a fallback)
//   - paseto: AURA_PASETO_V4_SECRET_KEY_HEX or AURA_PASETO_V4_PUBLIC_KEY_HEX
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("AURA_AUTH_MODE"))); v != "" {
		switch Mode(v) {
		case ModeJWT, ModePaseto:
			cfg.Mode = Mode(v)
		default:
			return Config{}, ErrConfig
		}
	}
	if v := strings.TrimSpace(os.Getenv("AURA_AUTH_COOKIE")); v != "" {
		cfg.CookieName = v
	}
	if v := strings.TrimSpace(os.Getenv("AURA_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("AURA_JWT_EXPIRES_IN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}
	if v := os.Getenv("AURA_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.JWTSecret = os.Getenv("AURA_JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("AURA_PASETO_V4_SECRET_KEY_HEX"))
	cfg.PasetoV4PublicKeyHex = strings.TrimSpace(os.Getenv("AURA_PASETO_V4_PUBLIC_KEY_HEX"))

	switch cfg.Mode {
	case ModeJWT:
		if cfg.JWTSecret == "" {
			return Config{}, ErrConfig
		}
	case ModePaseto:
		if cfg.PasetoV4SecretKeyHex == "" && cfg.PasetoV4PublicKeyHex == "" {
			return Config{}, ErrConfig
		}
	}

	return cfg, nil
}

// NewTokenManager builds the manager selected by cfg.Mode.
func NewTokenManager(cfg Config) (TokenManager, error) {
	switch cfg.Mode {
	case ModePaseto:
		return NewPasetoV4PublicManager(cfg)
	case ModeJWT, "":
		return NewJWTManager(cfg)
	default:
		return nil, ErrConfig
	}
}
