// Package db opens the shared Postgres pool and carries small helpers the
// service repositories lean on.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repromitra/telehealth/libs/config"
)

type Pool struct {
	*pgxpool.Pool
}

// PoolOptions sizes the pool. Services read them from DB_* variables.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func PoolOptionsFromEnv() (PoolOptions, error) {
	var (
		opts PoolOptions
		err  error
	)
	if opts.MaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return opts, err
	}
	if opts.MinConns, err = config.Int("DB_MIN_CONNS", 1); err != nil {
		return opts, err
	}
	if opts.MaxConnLifetime, err = config.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute); err != nil {
		return opts, err
	}
	if opts.MaxConnIdleTime, err = config.Duration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute); err != nil {
		return opts, err
	}
	if opts.MaxConns < 1 || opts.MinConns < 0 || opts.MinConns > opts.MaxConns {
		return opts, fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS out of range (%d/%d)", opts.MinConns, opts.MaxConns)
	}
	return opts, nil
}

// Open connects with pool sizing taken from the environment and pings once.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	opts, err := PoolOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	return OpenWithOptions(ctx, databaseURL, opts)
}

func OpenWithOptions(ctx context.Context, databaseURL string, opts PoolOptions) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = int32(opts.MaxConns)
	cfg.MinConns = int32(opts.MinConns)
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}
