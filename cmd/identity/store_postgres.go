package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"calcsync/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema/table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "calcsync").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "calcsync",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and users table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	users := pgIdent(s.schema, "users")

	_, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize())
	if err != nil {
		return fmt.Errorf("identity: create schema: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+users+` (
  id            TEXT PRIMARY KEY,
  username      TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  email         TEXT NULL,
  email_norm    TEXT NULL,
  password_hash TEXT NOT NULL,
  is_active     BOOLEAN NOT NULL DEFAULT true,
  is_admin      BOOLEAN NOT NULL DEFAULT false,
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL,

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
)`)
	if err != nil {
		return fmt.Errorf("identity: create users: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username, usernameNorm, email, emailNorm, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, username, username_norm, email, email_norm, password_hash,
		     is_active, is_admin, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8, $8)`,
		id, username, usernameNorm, email, emailNorm, in.PasswordHash, in.IsAdmin, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

const pgUserColumns = `id, username, username_norm, email, password_hash, is_active, is_admin, created_at, updated_at`

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getOne(ctx, "identity.GetUserByID", `id = $1`, strings.TrimSpace(id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getOne(ctx, "identity.GetUserByUsername", `username_norm = $1`, NormalizeUsername(username))
}

// SetActive toggles an account. Deactivated users fail credential verification.
func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetActive", Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, op, where string, arg string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}

var _ Store = (*PostgresStore)(nil)
