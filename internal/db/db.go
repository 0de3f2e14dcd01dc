// Package db provides the PostgreSQL-backed repositories for the billing
// sync service. Repositories accept a DBTX interface satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same code works inside or outside a
// transaction.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindgarden/internal/config"
)

// DBTX is the minimal query interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens a pgx connection pool with the configured tuning parameters
// and verifies connectivity with a ping before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// HealthProbe adapts a pool to the core.HealthProbe interface.
type HealthProbe struct {
	Pool *pgxpool.Pool
}

// Name implements core.HealthProbe.
func (p *HealthProbe) Name() string { return "database" }

// Check implements core.HealthProbe.
func (p *HealthProbe) Check(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
