// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Ephemeral store (run registry) settings.
	RedisURL  string
	KeyPrefix string // Namespace for all registry keys, e.g. "watchtower:".

	// Durable store (audit log) settings.
	DBPath string // SQLite database file; created on first start.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Rate limiting. Zero RPS disables the limiter entirely.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("WATCHTOWER_PORT", 8082),
		ReadTimeout:         envDuration("WATCHTOWER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("WATCHTOWER_WRITE_TIMEOUT", 30*time.Second),
		RedisURL:            envStr("REDIS_URL", "redis://localhost:6379/0"),
		KeyPrefix:           envStr("WATCHTOWER_KEY_PREFIX", "watchtower:"),
		DBPath:              envStr("WATCHTOWER_DB_PATH", "watchtower.db"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "watchtower"),
		RateLimitPerSecond:  envFloat("WATCHTOWER_RATE_LIMIT_RPS", 0),
		RateLimitBurst:      envInt("WATCHTOWER_RATE_LIMIT_BURST", 20),
		LogLevel:            envStr("WATCHTOWER_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("WATCHTOWER_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: WATCHTOWER_DB_PATH is required")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("config: WATCHTOWER_KEY_PREFIX is required")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: WATCHTOWER_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("config: WATCHTOWER_RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: WATCHTOWER_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
