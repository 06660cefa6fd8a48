package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreNone    = "none"
	StoreSQLite  = "sqlite"
	StoreKeyring = "keyring"
	StoreRedis   = "redis"
)

type Config struct {
	AppID      string // Required: provider application id
	LocalAppID string // Optional: distinguishes several apps sharing one AppID

	GraphURL  string // Optional: Graph endpoint override
	RESTURL   string // Optional: REST endpoint override
	DialogURL string // Optional: dialog endpoint override

	Store           string // Credential store: keyring, sqlite, redis, none (default: keyring)
	DatabaseFile    string // SQLite file for the sqlite store (default: graphctl.db)
	RedisURL        string // Redis URL for the redis store (default: redis://localhost:6379/0)
	StorePassphrase string // Seals tokens in sqlite and unlocks the keyring file backend

	HTTPTimeout time.Duration // Per attempt timeout (default: 30s)
	HTTPRetries int           // Retries for idempotent calls (default: 3)

	LoopbackAddr string // Listen address for the login redirect (default: 127.0.0.1:0)

	Env       string // Environment (dev, staging, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when there is one. Variables already set win over the
// file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		AppID:           os.Getenv("GRAPH_APP_ID"),
		LocalAppID:      os.Getenv("GRAPH_LOCAL_APP_ID"),
		GraphURL:        os.Getenv("GRAPH_URL"),
		RESTURL:         os.Getenv("GRAPH_REST_URL"),
		DialogURL:       os.Getenv("GRAPH_DIALOG_URL"),
		Store:           strings.ToLower(getEnvOrDefault("GRAPH_STORE", StoreKeyring)),
		DatabaseFile:    getEnvOrDefault("GRAPH_DATABASE_FILE", "graphctl.db"),
		RedisURL:        getEnvOrDefault("GRAPH_REDIS_URL", "redis://localhost:6379/0"),
		StorePassphrase: os.Getenv("GRAPH_STORE_PASSPHRASE"),
		HTTPTimeout:     getEnvDurationOrDefault("GRAPH_HTTP_TIMEOUT", 30*time.Second),
		HTTPRetries:     getEnvIntOrDefault("GRAPH_HTTP_RETRIES", 3),
		LoopbackAddr:    getEnvOrDefault("GRAPH_LOOPBACK_ADDR", "127.0.0.1:0"),
		Env:             getEnvOrDefault("ENV", "prod"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate reports settings that would fail later in a less obvious way.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AppID) == "" {
		errs = append(errs, errors.New("GRAPH_APP_ID is required"))
	}
	switch c.Store {
	case StoreNone, StoreSQLite, StoreKeyring, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want keyring, sqlite, redis or none)", c.Store))
	}
	if c.HTTPRetries < 0 {
		errs = append(errs, errors.New("GRAPH_HTTP_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1m", "30s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
