package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BOOKSHELF_DATABASE_DSN.
const EnvPrefix = "BOOKSHELF"

// Backend names accepted by cache.backend and ratelimit.backend
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is a typed snapshot of the viper configuration
type Config struct {
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	OpenLibrary OpenLibraryConfig
	Covers      CoversConfig
	Enrichment  EnrichmentConfig
	Server      ServerConfig
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type CacheConfig struct {
	Backend string
	DBFile  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Backend   string
	PerMinute int
	Window    time.Duration
}

type OpenLibraryConfig struct {
	BaseURL   string
	SearchURL string
	CoversURL string
	Timeout   time.Duration
}

type CoversConfig struct {
	Dir       string
	MaxWidth  int
	PerSecond float64
}

type EnrichmentConfig struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// InitConfig registers defaults and environment bindings on the global viper instance.
// A .env file in the working directory is loaded first when present.
func InitConfig() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	SetDefaults(viper.GetViper())

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// SetDefaults registers every known key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./bookshelf.db")

	v.SetDefault("cache.backend", BackendSQLite)
	v.SetDefault("cache.dbfile", "./cache.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.per_minute", 60)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("openlibrary.base_url", "https://openlibrary.org")
	v.SetDefault("openlibrary.search_url", "https://openlibrary.org/search.json")
	v.SetDefault("openlibrary.covers_url", "https://covers.openlibrary.org/b/id")
	v.SetDefault("openlibrary.timeout", "10s")

	v.SetDefault("covers.dir", "./covers")
	v.SetDefault("covers.max_width", 600)
	v.SetDefault("covers.per_second", 2.0)

	v.SetDefault("enrichment.workers", 2)
	v.SetDefault("enrichment.max_attempts", 3)
	v.SetDefault("enrichment.backoff", "10s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

// ReadConfigFile reads config.yaml from the working directory, or path when given.
// A missing file is not an error.
func ReadConfigFile(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Debug("Config file not found, using defaults")
			return nil
		}
		return err
	}

	slog.Debug("Loaded config file", "path", viper.ConfigFileUsed())
	return nil
}

// Load returns the current configuration from the global viper instance
func Load() Config {
	return FromViper(viper.GetViper())
}

// FromViper builds a Config from v
func FromViper(v *viper.Viper) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			DSN:    v.GetString("database.dsn"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString("cache.backend")),
			DBFile:  v.GetString("cache.dbfile"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Backend:   strings.ToLower(v.GetString("ratelimit.backend")),
			PerMinute: v.GetInt("ratelimit.per_minute"),
			Window:    v.GetDuration("ratelimit.window"),
		},
		OpenLibrary: OpenLibraryConfig{
			BaseURL:   v.GetString("openlibrary.base_url"),
			SearchURL: v.GetString("openlibrary.search_url"),
			CoversURL: v.GetString("openlibrary.covers_url"),
			Timeout:   v.GetDuration("openlibrary.timeout"),
		},
		Covers: CoversConfig{
			Dir:       v.GetString("covers.dir"),
			MaxWidth:  v.GetInt("covers.max_width"),
			PerSecond: v.GetFloat64("covers.per_second"),
		},
		Enrichment: EnrichmentConfig{
			Workers:     v.GetInt("enrichment.workers"),
			MaxAttempts: v.GetInt("enrichment.max_attempts"),
			Backoff:     v.GetDuration("enrichment.backoff"),
		},
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
	}
}

// UsesRedis reports whether any configured backend needs a redis connection
func (c Config) UsesRedis() bool {
	return c.Cache.Backend == BackendRedis || c.RateLimit.Backend == BackendRedis
}
