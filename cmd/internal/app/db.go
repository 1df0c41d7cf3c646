package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbApplicationName = "calcsync"

// NewDBPool builds a pgxpool from cfg and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := dbPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// dbPoolConfig applies the CALCSYNC_DB_* knobs on top of the DSN. MinConns
// never exceeds MaxConns. An application_name in the DSN wins.
func dbPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		pcfg.MinConns = min(cfg.DBMinConns, pcfg.MaxConns)
	}

	rp := pcfg.ConnConfig.RuntimeParams
	if rp["application_name"] == "" {
		rp["application_name"] = dbApplicationName
	}
	if cfg.DBSchema != "" {
		rp["search_path"] = cfg.DBSchema + ",public"
	}
	return pcfg, nil
}

// schemaEnsurer is implemented by every Postgres-backed store.
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// ensureSchema runs st's migrations, labelling failures with name.
func ensureSchema(ctx context.Context, name string, st schemaEnsurer) error {
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s schema: %w", name, err)
	}
	return nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
