// Package bootstrap builds the optional runtime dependencies of the API
// server from configuration. Every builder degrades to a disabled or
// in-process fallback instead of failing startup.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/contractor-booking/internal/config"
	"github.com/wolfman30/contractor-booking/internal/drafts"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDraftStore returns the Redis draft store, or nil when Redis is not
// configured. Sessions then live only in memory.
func BuildDraftStore(redisClient *redis.Client, cfg *appconfig.Config) *drafts.Store {
	if redisClient == nil {
		return nil
	}
	ttl := drafts.DefaultTTL
	if cfg != nil && cfg.DraftTTL > 0 {
		ttl = cfg.DraftTTL
	}
	return drafts.NewStore(redisClient, ttl)
}

// ConnectPostgresPool opens a pgx pool, or returns nil when the URL is empty
// or the database is unreachable.
func ConnectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("postgres pool init failed", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}
