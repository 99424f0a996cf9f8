package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canasta/internal/config"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/repo"
)

// Dependencies holds the infrastructure clients shared by the binaries. DB is
// nil when no database is configured.
type Dependencies struct {
	Redis *redis.Client
	DB    *pgxpool.Pool
}

// Open connects Redis and, when configured, Postgres. Migrations run first
// when cfg.RunMigrations is set.
func Open(ctx context.Context, cfg *config.Config, appName string, logger zerolog.Logger) (*Dependencies, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rdb, err := OpenRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Redis: rdb}
	if !cfg.RemoteSyncEnabled() {
		logger.Info().Msg("DATABASE_URL not set, remote sync and promotion lookup disabled")
		return deps, nil
	}
	if cfg.RunMigrations {
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			deps.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}
	pool, err := OpenDatabase(ctx, cfg.DatabaseURL, appName)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.DB = pool
	return deps, nil
}

// Close releases every open client.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// OpenRedis parses url, instruments the client and pings it.
func OpenRedis(ctx context.Context, url string, instrumentMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if instrumentMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OpenDatabase builds a traced pgx pool and pings it.
func OpenDatabase(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// QueueRedisOpt returns the asynq connection options for a redis:// URL.
func QueueRedisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse queue redis url: %w", err)
	}
	return opt, nil
}
