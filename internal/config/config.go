// Package config provides configuration management for the cache service.
// It loads settings from environment variables with sensible defaults and
// validates them before the cache starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Diagnostics server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Cache Settings:
//   - CACHE_MAX_ENTRIES: Memory tier entry cap (default: 100)
//   - CACHE_DEFAULT_TTL: Default entry TTL (default: 300s)
//   - CACHE_DEBOUNCE: Persistent write debounce interval (default: 500ms)
//   - CACHE_ROOT_KEY: Root key for the persisted table (default: tiercache:table)
//
// Backing Store:
//   - STORE_TYPE: "memory", "file", "sqlite", "postgres" or "redis" (default: file)
//   - STORE_FILE_PATH: File store path (default: ./tiercache.json)
//   - STORE_QUOTA_BYTES: Byte quota for memory/file stores, 0 = unlimited (default: 0)
//   - STORE_SQLITE_PATH: SQLite database path (default: ./tiercache.db)
//   - STORE_MAX_ROWS: Row quota for sqlite/postgres stores, 0 = unlimited (default: 0)
//   - STORE_POSTGRES_DSN: PostgreSQL connection string (required for postgres)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Maintenance:
//   - JANITOR_ENABLED: Run the background prune job (default: true)
//   - JANITOR_SCHEDULE: Cron spec for the prune job (default: @every 1m)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "tiercache/internal/common/errors"
)

// StoreType selects the backing store for the persistent tier.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StoreFile     StoreType = "file"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
	StoreRedis    StoreType = "redis"
)

// Config holds all configuration values for the cache service.
type Config struct {
	Port     string // Diagnostics server port
	LogLevel string // Logging level (debug, info, warn, error)

	// Cache settings
	MaxEntries int           // Memory tier entry cap
	DefaultTTL time.Duration // Applied when callers omit a TTL
	Debounce   time.Duration // Quiet period before persistent writes land
	RootKey    string        // Store key the serialized table lives under

	// Backing store
	StoreType     StoreType
	FilePath      string // File store location
	QuotaBytes    int    // Byte quota for memory/file stores
	SQLitePath    string // SQLite database location
	MaxRows       int    // Row quota for sqlite/postgres stores
	PostgresDSN   string // PostgreSQL connection string
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	// Maintenance
	JanitorEnabled  bool
	JanitorSchedule string // robfig/cron spec, e.g. "@every 1m"
}

// Load creates a Config from environment variables. Call Validate on the
// result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxEntries: getIntEnv("CACHE_MAX_ENTRIES", 100),
		DefaultTTL: getDurationEnv("CACHE_DEFAULT_TTL", 300*time.Second),
		Debounce:   getDurationEnv("CACHE_DEBOUNCE", 500*time.Millisecond),
		RootKey:    getEnv("CACHE_ROOT_KEY", "tiercache:table"),

		StoreType:   StoreType(getEnv("STORE_TYPE", "file")),
		FilePath:    getEnv("STORE_FILE_PATH", "./tiercache.json"),
		QuotaBytes:  getIntEnv("STORE_QUOTA_BYTES", 0),
		SQLitePath:  getEnv("STORE_SQLITE_PATH", "./tiercache.db"),
		MaxRows:     getIntEnv("STORE_MAX_ROWS", 0),
		PostgresDSN: getEnv("STORE_POSTGRES_DSN", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		JanitorEnabled:  getBoolEnv("JANITOR_ENABLED", true),
		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "@every 1m"),
	}
}

// Validate ensures all values are usable before the cache starts.
func (c *Config) Validate() error {
	switch c.StoreType {
	case StoreMemory, StoreFile, StoreSQLite, StorePostgres, StoreRedis:
	default:
		return apperrors.ConfigError(fmt.Sprintf("unknown STORE_TYPE %q", c.StoreType))
	}

	if c.StoreType == StoreFile && c.FilePath == "" {
		return apperrors.ConfigError("STORE_FILE_PATH is required for the file store")
	}
	if c.StoreType == StoreSQLite && c.SQLitePath == "" {
		return apperrors.ConfigError("STORE_SQLITE_PATH is required for the sqlite store")
	}
	if c.StoreType == StorePostgres && c.PostgresDSN == "" {
		return apperrors.ConfigError("STORE_POSTGRES_DSN is required for the postgres store")
	}

	if c.MaxEntries < 0 {
		return apperrors.ConfigError("CACHE_MAX_ENTRIES must not be negative")
	}
	if c.DefaultTTL <= 0 {
		return apperrors.ConfigError("CACHE_DEFAULT_TTL must be positive")
	}
	if c.Debounce <= 0 {
		return apperrors.ConfigError("CACHE_DEBOUNCE must be positive")
	}
	if c.RootKey == "" {
		return apperrors.ConfigError("CACHE_ROOT_KEY must not be empty")
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return apperrors.ConfigError("REDIS_DB must be between 0 and 15")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return apperrors.ConfigError(fmt.Sprintf("PORT %q is not a number", c.Port))
	}

	if c.JanitorEnabled {
		if _, err := cron.ParseStandard(c.JanitorSchedule); err != nil {
			return apperrors.ConfigError(
				fmt.Sprintf("JANITOR_SCHEDULE %q is not a valid cron spec", c.JanitorSchedule))
		}
	}

	return nil
}

// getEnv retrieves an environment variable or returns the default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
