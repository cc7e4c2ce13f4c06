package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleetdesk/internal/platform/config"
)

const (
	connectAttempts = 3
	connectBackoff  = time.Second
)

// Pool wraps a *pgxpool.Pool with health checking capabilities.
type Pool struct {
	*pgxpool.Pool
}

// New connects to PostgreSQL, retrying a few times with a doubling backoff
// while the database comes up. Returns nil if the URL is empty.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	var lastErr error
	wait := connectBackoff
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err := connect(ctx, poolConfig)
		if err == nil {
			return &Pool{Pool: pool}, nil
		}
		lastErr = err
		if attempt == connectAttempts {
			break
		}
		logger.WarnContext(ctx, "database connection failed, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect database: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, lastErr)
}

func connect(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("database not configured")
	}
	return p.Ping(ctx)
}

// Close closes the pool. Safe on a nil Pool.
func (p *Pool) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}
