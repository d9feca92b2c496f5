package app

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/auth"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env from the working directory when present.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Serve is the entrypoint of `aura-seer serve`. It returns an error instead
// of calling os.Exit so defers run.
func Serve() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// Migrate is the entrypoint of `aura-seer migrate`.
func Migrate() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close(context.Background()) }()

	return b.migrate(ctx, cfg.DirectorySeed, log)
}

// IssueToken mints an access token for local testing (`aura-seer token`).
func IssueToken(userID, role string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("user id required")
	}
	cfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		return "", time.Time{}, err
	}
	tm, err := auth.NewTokenManager(cfg)
	if err != nil {
		return "", time.Time{}, err
	}
	return tm.Issue(auth.Principal{UserID: userID, Role: role}, time.Now().UTC())
}
