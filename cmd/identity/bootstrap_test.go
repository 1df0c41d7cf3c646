package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAdmin_CreatesOnce(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	h := testHasher()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	acct := AdminAccount{Username: "admin", Password: "admin-password-1", Email: "admin@example.com"}

	u, created, err := EnsureAdmin(context.Background(), store, h, acct, log)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, u.IsAdmin)

	ok, err := h.Verify(u.PasswordHash, "admin-password-1")
	require.NoError(t, err)
	assert.True(t, ok)

	again, created, err := EnsureAdmin(context.Background(), store, h, AdminAccount{Username: "ADMIN", Password: "different-password"}, log)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, u.PasswordHash, again.PasswordHash)
}

func TestEnsureAdmin_Disabled(t *testing.T) {
	t.Parallel()

	_, created, err := EnsureAdmin(context.Background(), NewMemoryStore(), testHasher(), AdminAccount{}, nil)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureAdmin_RequiresPassword(t *testing.T) {
	t.Parallel()

	_, _, err := EnsureAdmin(context.Background(), NewMemoryStore(), testHasher(), AdminAccount{Username: "root"}, nil)
	assert.True(t, IsInvalidInput(err))
}
