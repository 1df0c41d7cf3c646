package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists invites in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "calcsync").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
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
		return nil, ErrInvalidInput
	}
	return st, nil
}

// EnsureSchema creates the schema and invites table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	invites := pgIdent(s.schema, "invites")
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + invites + ` (
  id          TEXT PRIMARY KEY,
  token_hash  TEXT NOT NULL,
  created_by  TEXT NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL,
  expires_at  TIMESTAMPTZ NOT NULL,
  max_uses    INT NOT NULL DEFAULT 1,
  used_count  INT NOT NULL DEFAULT 0,
  revoked_at  TIMESTAMPTZ NULL,
  note        TEXT NULL,
  consumed_at TIMESTAMPTZ NULL,
  consumed_by TEXT NULL,
  CONSTRAINT chk_invites_token_hash_len CHECK (char_length(token_hash) = 64),
  CONSTRAINT chk_invites_max_uses CHECK (max_uses >= 1),
  CONSTRAINT chk_invites_used_count CHECK (used_count >= 0 AND used_count <= max_uses)
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_invites_token_hash ON ` + invites + ` (token_hash)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("invite: ensure schema: %w", err)
		}
	}
	return nil
}

const inviteColumns = `id, created_by, created_at, expires_at, max_uses, used_count, revoked_at, note, consumed_at, consumed_by`

func scanInvite(row pgx.Row) (Invite, error) {
	var out Invite
	err := row.Scan(
		&out.ID,
		&out.CreatedBy,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.MaxUses,
		&out.UsedCount,
		&out.RevokedAt,
		&out.Note,
		&out.ConsumedAt,
		&out.ConsumedBy,
	)
	return out, err
}

// Create inserts a new invite record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.MaxUses <= 0 {
		return Invite{}, ErrInvalidInput
	}
	if in.Note != nil && len(strings.TrimSpace(*in.Note)) > maxNoteLength {
		return Invite{}, ErrInvalidInput
	}

	return scanInvite(s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "invites")+` (
		     id, token_hash, created_by, created_at, expires_at, max_uses, note
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+inviteColumns,
		in.ID,
		in.TokenHash,
		in.CreatedBy,
		in.CreatedAt,
		in.ExpiresAt,
		in.MaxUses,
		in.Note,
	))
}

// GetByTokenHash fetches an invite by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Invite{}, ErrInvalidInput
	}

	out, err := scanInvite(s.pool.QueryRow(ctx,
		`SELECT `+inviteColumns+`
		   FROM `+pgIdent(s.schema, "invites")+`
		  WHERE token_hash = $1`,
		tokenHash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, ErrNotFound
	}
	return out, err
}

// Consume increments used_count and marks last consumption.
func (s *PostgresStore) Consume(ctx context.Context, in ConsumeRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.TokenHash) == "" || strings.TrimSpace(in.ConsumedBy) == "" {
		return Invite{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	out, err := scanInvite(s.pool.QueryRow(ctx,
		`UPDATE `+pgIdent(s.schema, "invites")+`
		    SET used_count = used_count + 1,
		        consumed_at = $1,
		        consumed_by = $2
		  WHERE token_hash = $3
		    AND revoked_at IS NULL
		    AND expires_at > $1
		    AND used_count < max_uses
		RETURNING `+inviteColumns,
		in.Now,
		in.ConsumedBy,
		in.TokenHash,
	))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, err
	}

	// Distinguish not-found vs not-active.
	if _, selErr := s.GetByTokenHash(ctx, in.TokenHash); selErr != nil {
		return Invite{}, selErr
	}
	return Invite{}, ErrNotActive
}

// Revoke sets revoked_at once; later calls keep the first timestamp.
func (s *PostgresStore) Revoke(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "invites")+`
		    SET revoked_at = COALESCE(revoked_at, $2)
		  WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
