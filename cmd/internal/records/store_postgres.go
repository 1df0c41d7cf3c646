package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller. Upserts are guarded by user_id so a
// client cannot overwrite another user's row by guessing its id.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "calcsync").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("records: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "calcsync"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("records: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and record tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + s.table("single_records") + ` (
  id               TEXT PRIMARY KEY,
  user_id          TEXT NOT NULL,
  match_name       TEXT NOT NULL DEFAULT '',
  stake            DOUBLE PRECISION NOT NULL DEFAULT 0,
  odds             DOUBLE PRECISION NOT NULL DEFAULT 0,
  commission       DOUBLE PRECISION NOT NULL DEFAULT 0,
  potential_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
  lay_odds         DOUBLE PRECISION NULL,
  lay_stake        DOUBLE PRECISION NULL,
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_single_records_user ON ` + s.table("single_records") + ` (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("pro_records") + ` (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  match_name  TEXT NOT NULL DEFAULT '',
  back_stake  DOUBLE PRECISION NOT NULL DEFAULT 0,
  back_odds   DOUBLE PRECISION NOT NULL DEFAULT 0,
  lay_stake   DOUBLE PRECISION NOT NULL DEFAULT 0,
  lay_odds    DOUBLE PRECISION NOT NULL DEFAULT 0,
  commission  DOUBLE PRECISION NOT NULL DEFAULT 0,
  profit_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ NOT NULL,
  updated_at  TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_pro_records_user ON ` + s.table("pro_records") + ` (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("broker_accounts") + ` (
  id              TEXT PRIMARY KEY,
  user_id         TEXT NOT NULL,
  account_name    TEXT NOT NULL,
  balance         DOUBLE PRECISION NOT NULL DEFAULT 0,
  commission_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  account_type    TEXT NOT NULL DEFAULT 'betfair',
  is_active       BOOLEAN NOT NULL DEFAULT true,
  created_at      TIMESTAMPTZ NOT NULL,
  updated_at      TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_broker_accounts_user ON ` + s.table("broker_accounts") + ` (user_id, created_at)`,
	}

	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("records: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

const singleColumns = `id, user_id, match_name, stake, odds, commission, potential_profit, lay_odds, lay_stake, created_at, updated_at`

func (s *PostgresStore) ListSingle(ctx context.Context, userID string) ([]Single, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+singleColumns+` FROM `+s.table("single_records")+` WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Single, error) {
		var r Single
		err := row.Scan(&r.ID, &r.UserID, &r.MatchName, &r.Stake, &r.Odds, &r.Commission, &r.PotentialProfit,
			&r.LayOdds, &r.LayStake, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
}

func (s *PostgresStore) SaveSingle(ctx context.Context, rec Single) (Single, error) {
	t := s.table("single_records")
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+t+` (`+singleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		     match_name = EXCLUDED.match_name,
		     stake = EXCLUDED.stake,
		     odds = EXCLUDED.odds,
		     commission = EXCLUDED.commission,
		     potential_profit = EXCLUDED.potential_profit,
		     lay_odds = EXCLUDED.lay_odds,
		     lay_stake = EXCLUDED.lay_stake,
		     updated_at = EXCLUDED.updated_at
		   WHERE `+t+`.user_id = EXCLUDED.user_id
		 RETURNING created_at`,
		rec.ID, rec.UserID, rec.MatchName, rec.Stake, rec.Odds, rec.Commission, rec.PotentialProfit,
		rec.LayOdds, rec.LayStake, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.CreatedAt)
	return rec, noRows(err)
}

const proColumns = `id, user_id, match_name, back_stake, back_odds, lay_stake, lay_odds, commission, profit_loss, created_at, updated_at`

func (s *PostgresStore) ListPro(ctx context.Context, userID string) ([]Pro, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proColumns+` FROM `+s.table("pro_records")+` WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Pro, error) {
		var r Pro
		err := row.Scan(&r.ID, &r.UserID, &r.MatchName, &r.BackStake, &r.BackOdds, &r.LayStake, &r.LayOdds,
			&r.Commission, &r.ProfitLoss, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
}

func (s *PostgresStore) SavePro(ctx context.Context, rec Pro) (Pro, error) {
	t := s.table("pro_records")
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+t+` (`+proColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		     match_name = EXCLUDED.match_name,
		     back_stake = EXCLUDED.back_stake,
		     back_odds = EXCLUDED.back_odds,
		     lay_stake = EXCLUDED.lay_stake,
		     lay_odds = EXCLUDED.lay_odds,
		     commission = EXCLUDED.commission,
		     profit_loss = EXCLUDED.profit_loss,
		     updated_at = EXCLUDED.updated_at
		   WHERE `+t+`.user_id = EXCLUDED.user_id
		 RETURNING created_at`,
		rec.ID, rec.UserID, rec.MatchName, rec.BackStake, rec.BackOdds, rec.LayStake, rec.LayOdds,
		rec.Commission, rec.ProfitLoss, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.CreatedAt)
	return rec, noRows(err)
}

const brokerColumns = `id, user_id, account_name, balance, commission_rate, account_type, is_active, created_at, updated_at`

func (s *PostgresStore) ListBroker(ctx context.Context, userID string) ([]BrokerAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+brokerColumns+` FROM `+s.table("broker_accounts")+` WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanBroker)
}

func (s *PostgresStore) SaveBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error) {
	t := s.table("broker_accounts")
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+t+` (`+brokerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     account_name = EXCLUDED.account_name,
		     balance = EXCLUDED.balance,
		     commission_rate = EXCLUDED.commission_rate,
		     account_type = EXCLUDED.account_type,
		     is_active = EXCLUDED.is_active,
		     updated_at = EXCLUDED.updated_at
		   WHERE `+t+`.user_id = EXCLUDED.user_id
		 RETURNING created_at`,
		rec.ID, rec.UserID, rec.AccountName, rec.Balance, rec.CommissionRate, rec.AccountType, rec.IsActive,
		rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.CreatedAt)
	return rec, noRows(err)
}

func (s *PostgresStore) UpdateBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE `+s.table("broker_accounts")+`
		    SET account_name = $3, balance = $4, commission_rate = $5, account_type = $6,
		        is_active = $7, updated_at = $8
		  WHERE id = $1 AND user_id = $2
		 RETURNING created_at`,
		rec.ID, rec.UserID, rec.AccountName, rec.Balance, rec.CommissionRate, rec.AccountType, rec.IsActive, rec.UpdatedAt,
	).Scan(&rec.CreatedAt)
	return rec, noRows(err)
}

func (s *PostgresStore) DeleteBroker(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("broker_accounts")+` WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBroker(row pgx.CollectableRow) (BrokerAccount, error) {
	var r BrokerAccount
	err := row.Scan(&r.ID, &r.UserID, &r.AccountName, &r.Balance, &r.CommissionRate, &r.AccountType, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// noRows maps an empty RETURNING (missing row, or the ownership guard
// rejected the upsert) to ErrNotFound.
func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
