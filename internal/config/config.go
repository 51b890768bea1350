package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage backend selection. Checked in order: RedisURL, DatabaseURL,
	// SQLitePath; with none of them set the server keeps history in memory.
	DatabaseURL string
	RedisURL    string
	SQLitePath  string

	// JWTSecret signs pull-session tokens.
	JWTSecret string

	// Chat limits.
	HistoryRetention int           // max messages retained by the store
	MaxMessageLength int           // max text message length in characters
	MaxDeltaBatch    int           // upper bound on poll/history batch size
	TypingTimeout    time.Duration // quiet period before an implicit typing stop
	PullSessionTTL   time.Duration // poll inactivity window before a session is reaped

	AllowedOrigins []string // websocket origin allowlist; empty allows all
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		JWTSecret:        getEnv("JWT_SECRET", "chat-room-dev-secret"),
		HistoryRetention: getEnvInt("HISTORY_RETENTION", 1000),
		MaxMessageLength: getEnvInt("MAX_MESSAGE_LENGTH", 1000),
		MaxDeltaBatch:    getEnvInt("MAX_DELTA_BATCH", 200),
		TypingTimeout:    getEnvDuration("TYPING_TIMEOUT", 3*time.Second),
		PullSessionTTL:   getEnvDuration("PULL_SESSION_TTL", 60*time.Second),
	}

	// Parse origin allowlist (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, entry)
			}
		}
	}

	// In production, require a real token secret
	if cfg.Env == "production" {
		if os.Getenv("JWT_SECRET") == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
