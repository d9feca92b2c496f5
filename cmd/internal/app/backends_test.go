package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/directory"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenBackends_MemoryWithSeed(t *testing.T) {
	t.Parallel()

	seed := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(seed, []byte(testSeed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	b, err := openBackends(t.Context(), Config{Store: StoreMemory, DirectorySeed: seed}, discardLogger())
	if err != nil {
		t.Fatalf("openBackends: %v", err)
	}
	defer func() { _ = b.Close(context.Background()) }()

	if b.kind != StoreMemory || b.databaseBacked() {
		t.Fatalf("kind=%q databaseBacked=%v", b.kind, b.databaseBacked())
	}
	u, err := b.dir.FindSpecialist(t.Context(), "cardio")
	if err != nil || u.ID != "d1" {
		t.Fatalf("FindSpecialist: %+v, %v", u, err)
	}
	if err := b.migrate(t.Context(), seed, discardLogger()); err != nil {
		t.Fatalf("memory migrate must be a no-op: %v", err)
	}
}

func TestOpenBackends_Errors(t *testing.T) {
	t.Parallel()

	if _, err := openBackends(t.Context(), Config{Store: StoreMemory, DirectorySeed: "/does/not/exist.json"}, discardLogger()); err == nil {
		t.Fatalf("expected error for missing seed file")
	}
	if _, err := openBackends(t.Context(), Config{Store: StorePostgres}, discardLogger()); err == nil {
		t.Fatalf("expected error for postgres without a URL")
	}
	if _, err := openBackends(t.Context(), Config{Store: StoreMongo}, discardLogger()); err == nil {
		t.Fatalf("expected error for mongo without a URI")
	}
}

func TestBackends_PostgresMigrateAndSeed(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("AURA_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("AURA_TEST_DATABASE_URL not set")
	}

	seed := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(seed, []byte(testSeed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	schema := "aura_app_it_" + strings.ToLower(time.Now().UTC().Format("150405"))
	cfg := Config{Store: StorePostgres, DatabaseURL: dsn, DBSchema: schema, DBMaxConns: 4}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	b, err := openBackends(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackends: %v", err)
	}
	t.Cleanup(func() {
		_, _ = b.pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+schema+` CASCADE`)
		_ = b.Close(context.Background())
	})

	if err := b.migrate(ctx, seed, discardLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run must be idempotent.
	if err := b.migrate(ctx, seed, discardLogger()); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	u, err := b.dir.Get(ctx, "p1")
	if err != nil || u.Role != directory.RolePatient {
		t.Fatalf("seeded patient: %+v, %v", u, err)
	}
}
