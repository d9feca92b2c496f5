package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Anix003/aura-seer/cmd/internal/chat"
	"github.com/Anix003/aura-seer/cmd/internal/directory"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const seedConcurrency = 4

// backends owns the message store, the user directory and the connections
// behind them. Stores do not close shared connections; Close here does.
type backends struct {
	kind  string
	store chat.MessageStore
	dir   directory.Directory

	pool  *pgxpool.Pool
	mongo *mongo.Client

	// seeder is set for database directories that accept upserts.
	seeder interface {
		Upsert(ctx context.Context, u directory.User) error
	}
	migrators []func(ctx context.Context) error
}

// openBackends connects the backend selected by cfg. Unknown store names behave like "auto".
func openBackends(ctx context.Context, cfg Config, log *slog.Logger) (*backends, error) {
	switch cfg.storeKind() {
	case StorePostgres:
		return openPostgres(ctx, cfg, log)
	case StoreMongo:
		return openMongo(ctx, cfg, log)
	default:
		return openMemory(cfg, log)
	}
}

func openMemory(cfg Config, log *slog.Logger) (*backends, error) {
	var (
		dir *directory.MemoryDirectory
		err error
	)
	if cfg.DirectorySeed != "" {
		dir, err = directory.LoadMemoryDirectory(cfg.DirectorySeed)
	} else {
		dir, err = directory.NewMemoryDirectory()
	}
	if err != nil {
		return nil, err
	}

	log.Info("store.enabled", "kind", StoreMemory, "seed", cfg.DirectorySeed)
	return &backends{
		kind:  StoreMemory,
		store: chat.NewInMemoryStore(),
		dir:   dir,
	}, nil
}

func openPostgres(ctx context.Context, cfg Config, log *slog.Logger) (*backends, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("AURA_STORE=postgres requires AURA_DATABASE_URL")
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}
	dir, err := directory.NewPostgresDirectory(pool, directory.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("store.enabled", "kind", StorePostgres, "schema", cfg.DBSchema)
	return &backends{
		kind:      StorePostgres,
		store:     store,
		dir:       dir,
		pool:      pool,
		seeder:    dir,
		migrators: []func(context.Context) error{store.Migrate, dir.Migrate},
	}, nil
}

func openMongo(ctx context.Context, cfg Config, log *slog.Logger) (*backends, error) {
	if cfg.MongoURI == "" {
		return nil, errors.New("AURA_STORE=mongo requires AURA_MONGO_URI")
	}
	client, err := NewMongoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)

	store, err := chat.NewMongoStore(db, chat.DefaultMongoCollection)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	dir, err := directory.NewMongoDirectory(db, directory.DefaultMongoCollection)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("store.enabled", "kind", StoreMongo, "database", cfg.MongoDatabase)
	return &backends{
		kind:      StoreMongo,
		store:     store,
		dir:       dir,
		mongo:     client,
		seeder:    dir,
		migrators: []func(context.Context) error{store.EnsureIndexes, dir.EnsureIndexes},
	}, nil
}

// migrate creates tables or indexes, then upserts the directory seed if one is configured.
func (b *backends) migrate(ctx context.Context, seedPath string, log *slog.Logger) error {
	if b.kind == StoreMemory {
		log.Info("migrate.skip", "reason", "memory store")
		return nil
	}

	// Sequential: both postgres steps create the shared schema.
	for _, m := range b.migrators {
		if err := m(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", b.kind, err)
		}
	}
	log.Info("migrate.ok", "kind", b.kind)

	if seedPath == "" || b.seeder == nil {
		return nil
	}
	users, err := directory.ReadSeed(seedPath)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for _, u := range users {
		g.Go(func() error {
			if err := b.seeder.Upsert(gctx, u); err != nil {
				return fmt.Errorf("seed user %q: %w", u.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("migrate.seed.ok", "users", len(users))
	return nil
}

func (b *backends) databaseBacked() bool { return b.kind != StoreMemory }

func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
