package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     StorageConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Pagination  PaginationConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Idempotency IdempotencyConfig
}

// StorageConfig selects and locates the primary database.
type StorageConfig struct {
	Driver        string `default:"postgres" usage:"Storage driver: postgres, mongo or memory"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (STORE_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI      string `usage:"MongoDB connection URI (STORE_STORAGE_MONGO_URI or MONGODB_URI)" flag:"mongo-uri"`
	MongoDatabase string `default:"storefront" usage:"MongoDB database name" flag:"mongo-database"`
}

// RedisConfig is optional. Without a URL, checkout idempotency is off and
// rate limits are kept per process.
type RedisConfig struct {
	URL       string `usage:"Redis URL (STORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Namespace string `default:"store" usage:"Prefix of every Redis key"`
}

// AuthConfig holds the credentials used to authenticate callers.
type AuthConfig struct {
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	JWTSecret    string `usage:"HS256 secret of bearer tokens; empty disables bearer auth" flag:"jwt-secret"`
	JWTIssuer    string `default:"" usage:"Required issuer of bearer tokens" flag:"jwt-issuer"`
}

// PaginationConfig sets the page size of list endpoints. Clients can ask
// for at most 100 documents per page.
type PaginationConfig struct {
	DefaultLimit int `default:"20" usage:"Page size when ?limit is absent"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// IdempotencyConfig controls how long checkout responses are replayable.
type IdempotencyConfig struct {
	TTL time.Duration `default:"24h" usage:"Lifetime of a stored checkout response"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names to the STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.Storage.DatabaseURL, "DATABASE_URL")
	fallback(&c.Storage.MongoURI, "MONGODB_URI")
	fallback(&c.Redis.URL, "REDIS_URL")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set STORE_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("mongo URI is required: set STORE_STORAGE_MONGO_URI or MONGODB_URI")
		}
		if c.Storage.MongoDatabase == "" {
			return errors.New("mongo database name is required")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit needs a positive max and window")
	}
	return nil
}
