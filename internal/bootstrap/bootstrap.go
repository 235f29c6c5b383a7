// Package bootstrap builds the shared runtime dependencies of the binaries
// from a loaded config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"bulksender/internal/config"
	"bulksender/internal/logging"
	"bulksender/internal/repository"
	"bulksender/internal/session"
)

const pingTimeout = 5 * time.Second

// OpenStore opens the configured progress store. The returned DB is nil
// for the none backend; callers close it when it is not.
func OpenStore(cfg *config.Config) (repository.ProgressStore, *sql.DB, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if _, err := repository.MigrateUp(db, repository.DialectPostgres); err != nil {
			db.Close()
			return nil, nil, err
		}

		logging.Info().Str("backend", cfg.Storage.Backend).Msg("connected to database")
		return repository.NewPostgresProgressStore(db), db, nil

	case config.BackendSQLite:
		db, err := repository.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logging.Info().Str("backend", cfg.Storage.Backend).Str("path", cfg.Storage.SQLitePath).Msg("opened database")
		return repository.NewSQLiteProgressStore(db), db, nil

	case config.BackendNone:
		logging.Warn().Msg("progress persistence disabled")
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewProvider builds the simulated session provider behind per channel breakers
func NewProvider(cfg *config.Config) session.Provider {
	sim := session.NewSimulatedProvider(cfg.Simulator.SuccessRate, nil)
	sim.SetLatency(cfg.Simulator.MinLatency, cfg.Simulator.MaxLatency)
	for _, ch := range cfg.Simulator.OfflineChannels {
		sim.SetOnline(ch, false)
	}
	return session.NewBreakerProvider(sim, cfg.BreakerConfig())
}

// NewRedisClient connects to Redis, or returns nil when Redis is not configured
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logging.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	return client, nil
}
