package records

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"calcsync/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("CALCSYNC_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CALCSYNC_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema := "records_test_" + strings.ToLower(ids.MustULID(time.Now()))
	st, err := NewPostgresStore(pool, WithSchema(schema))
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	return st
}

func TestPostgresStore_UpsertOwnership(t *testing.T) {
	st := newPostgresTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	lay := 3.2
	rec := Single{Meta: Meta{ID: ids.MustULID(now), UserID: "alice", CreatedAt: now, UpdatedAt: now}, MatchName: "m", Stake: 10, LayOdds: &lay}
	_, err := st.SaveSingle(ctx, rec)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	rec.MatchName, rec.CreatedAt, rec.UpdatedAt = "m2", later, later
	got, err := st.SaveSingle(ctx, rec)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(now), "created_at must be preserved")

	foreign := rec
	foreign.UserID = "bob"
	_, err = st.SaveSingle(ctx, foreign)
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := st.ListSingle(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m2", rows[0].MatchName)
	require.NotNil(t, rows[0].LayOdds)
	assert.InDelta(t, 3.2, *rows[0].LayOdds, 1e-9)
	assert.Nil(t, rows[0].LayStake)
}

func TestPostgresStore_BrokerUpdateDelete(t *testing.T) {
	st := newPostgresTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	acct := BrokerAccount{Meta: Meta{ID: ids.MustULID(now), UserID: "alice", CreatedAt: now, UpdatedAt: now}, AccountName: "main", AccountType: "betfair", IsActive: true}
	_, err := st.SaveBroker(ctx, acct)
	require.NoError(t, err)

	acct.Balance = 42
	_, err = st.UpdateBroker(ctx, acct)
	require.NoError(t, err)

	missing := acct
	missing.ID = ids.MustULID(now)
	_, err = st.UpdateBroker(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, st.DeleteBroker(ctx, "bob", acct.ID), ErrNotFound)
	require.NoError(t, st.DeleteBroker(ctx, "alice", acct.ID))

	rows, err := st.ListBroker(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
