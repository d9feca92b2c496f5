package app

import "time"

// Store backends accepted by AURA_STORE.
const (
	StoreAuto     = "auto"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Store selects the message store and directory backend. "auto" picks
	// postgres when DatabaseURL is set, then mongo when MongoURI is set, else memory.
	Store string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	MongoURI      string
	MongoDatabase string

	// DirectorySeed is a JSON array of users loaded into the memory directory
	// and upserted by `migrate`.
	DirectorySeed string

	// If true, /readyz returns 503 unless a database backend is configured and reachable.
	ReadinessRequireDB bool

	// If true, jwt mode requires a secret of at least 32 bytes.
	RequireStrongSecret bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AURA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("AURA_LOG_LEVEL", "info"),
		LogFormat: EnvString("AURA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AURA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AURA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AURA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AURA_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("AURA_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("AURA_HTTP_MAX_HEADER_BYTES", 1<<20),

		Store: EnvString("AURA_STORE", StoreAuto),

		DatabaseURL: EnvString("AURA_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("AURA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AURA_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("AURA_DB_SCHEMA", "aura"),

		MongoURI:      EnvString("AURA_MONGO_URI", EnvString("MONGO_URI", "")),
		MongoDatabase: EnvString("AURA_MONGO_DATABASE", "aura_seer"),

		DirectorySeed: EnvString("AURA_DIRECTORY_SEED", ""),

		ReadinessRequireDB:  EnvBool("AURA_READINESS_REQUIRE_DB", false),
		RequireStrongSecret: EnvBool("AURA_REQUIRE_STRONG_SECRET", false),

		CORSAllowedOrigins:   EnvCSV("AURA_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("AURA_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("AURA_CORS_MAX_AGE", 600),
	}
}

// storeKind resolves "auto" against the configured URLs.
func (c Config) storeKind() string {
	switch c.Store {
	case StoreMemory, StorePostgres, StoreMongo:
		return c.Store
	}
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.MongoURI != "":
		return StoreMongo
	default:
		return StoreMemory
	}
}
