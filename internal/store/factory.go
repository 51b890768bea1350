package store

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/config"
)

// Open selects and initializes the message store backend from deployment
// configuration. The choice is made once at startup; backends are never
// swapped at runtime.
//
// Precedence: Redis, then DATABASE_URL, then a local SQLite file, and
// finally process memory for development.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (MessageStore, error) {
	if cfg.RedisURL != "" {
		logger.Info().Msg("using Redis message store")
		return NewRedisStore(ctx, cfg.RedisURL, cfg.HistoryRetention)
	}

	if cfg.DatabaseURL != "" {
		if strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			logger.Info().Msg("using PostgreSQL message store")
			return NewPostgresStore(ctx, cfg.DatabaseURL, cfg.HistoryRetention)
		}
		logger.Warn().Str("url", cfg.DatabaseURL).Msg("unsupported DATABASE_URL scheme, falling back")
	}

	if cfg.SQLitePath != "" {
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite message store")
		return NewSQLiteStore(ctx, cfg.SQLitePath, cfg.HistoryRetention)
	}

	logger.Info().Msg("using in-memory message store (development only)")
	return NewMemoryStore(cfg.HistoryRetention), nil
}
