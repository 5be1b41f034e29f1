package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/branch_ledger/internal/config"
)

// NewPostgresPool opens the pool behind the postgres account store and checks
// it with a ping.
func NewPostgresPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := postgresPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx := ctx
	if cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// postgresPoolConfig tags connections with the application name, which shows
// up in pg_stat_activity, and bounds dialing by the store timeout. Settings in
// the URL win over DATABASE_MAX_CONNS.
func postgresPoolConfig(cfg config.Config) (*pgxpool.Config, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.AppName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	if cfg.StoreTimeout > 0 && poolCfg.ConnConfig.ConnectTimeout == 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.StoreTimeout
	}
	if cfg.DatabaseMaxConns > 0 && !hasPoolParam(cfg.DatabaseURL, "pool_max_conns") {
		poolCfg.MaxConns = cfg.DatabaseMaxConns
	}
	return poolCfg, nil
}

func hasPoolParam(url, name string) bool {
	return strings.Contains(url, name+"=")
}
