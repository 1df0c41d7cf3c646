package invite

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"calcsync/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresTestService(t *testing.T) *Service {
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

	schema := "invite_test_" + strings.ToLower(ids.MustULID(time.Now()))
	st, err := NewPostgresStore(pool, WithSchema(schema))
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	svc, err := NewService(st)
	require.NoError(t, err)
	return svc
}

func TestPostgresStore_CreateValidateConsumeRevoke(t *testing.T) {
	svc := newPostgresTestService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	inv, tok, err := svc.CreateInvite(ctx, CreateInput{CreatedBy: "admin-id", TTL: 24 * time.Hour, MaxUses: 1, Now: now})
	require.NoError(t, err)

	ok, _, err := svc.ValidateInvite(ctx, tok, now)
	require.NoError(t, err)
	assert.True(t, ok)

	used, err := svc.ConsumeInvite(ctx, ConsumeInput{Token: tok, ConsumedBy: "alice", Now: now.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 1, used.UsedCount)

	_, err = svc.ConsumeInvite(ctx, ConsumeInput{Token: tok, ConsumedBy: "bob", Now: now.Add(2 * time.Second)})
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = svc.ConsumeInvite(ctx, ConsumeInput{Token: "missing", ConsumedBy: "bob", Now: now})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.RevokeInvite(ctx, inv.ID, now))
	assert.ErrorIs(t, svc.RevokeInvite(ctx, "missing", now), ErrNotFound)
}

func TestPostgresStore_ConcurrentConsumeHonorsMaxUses(t *testing.T) {
	svc := newPostgresTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const maxUses = 3
	_, tok, err := svc.CreateInvite(ctx, CreateInput{CreatedBy: "admin-id", MaxUses: maxUses, Now: now})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ConsumeInvite(ctx, ConsumeInput{Token: tok, ConsumedBy: "user-" + string(rune('a'+i)), Now: now.Add(time.Second)})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, maxUses, success)
}
