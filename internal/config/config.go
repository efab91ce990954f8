// Package config loads the relay server configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay server configuration
type Config struct {
	Port        string
	Environment string

	LogLevel string
	LogFile  string

	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// RedisAddr enables cross-process fan-out through Redis pub/sub when set
	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	// ReportToggleErrors sends like_error / comment_like_error to the sender when a
	// like toggle fails. When false, toggle failures are only logged.
	ReportToggleErrors bool

	WSMaxMessagesPerSecond int
	WSBurst                int

	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and then the process environment
func Load() (*Config, error) {
	// A missing .env file is fine; system environment variables still apply
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "3001"),
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        getEnvOrDefault("LOG_FILE", "relay.log"),
		DatabaseDriver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "postgres")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisChannel:   getEnvOrDefault("REDIS_CHANNEL", "whispers:broadcast"),
	}

	var err error
	if cfg.ReportToggleErrors, err = getEnvBool("REPORT_TOGGLE_ERRORS", false); err != nil {
		return nil, err
	}
	if cfg.WSMaxMessagesPerSecond, err = getEnvInt("WS_MAX_MESSAGES_PER_SECOND", 10); err != nil {
		return nil, err
	}
	if cfg.WSBurst, err = getEnvInt("WS_BURST", 20); err != nil {
		return nil, err
	}
	shutdownSeconds, err := getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeout = time.Duration(shutdownSeconds) * time.Second

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL(cfg.DatabaseDriver)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres or sqlite)", c.DatabaseDriver)
	}
	if c.WSMaxMessagesPerSecond <= 0 || c.WSBurst <= 0 {
		return fmt.Errorf("websocket rate limits must be positive")
	}
	return nil
}

// IsDevelopment reports whether the relay runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func defaultDatabaseURL(driver string) string {
	if driver == "sqlite" {
		return getEnvOrDefault("DB_PATH", "whispers.db")
	}

	// Fallback to individual components
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "whispers")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
