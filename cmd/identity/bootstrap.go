package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AdminAccount describes the bootstrap administrator. An empty Username
// disables bootstrap.
type AdminAccount struct {
	Username string
	Password string
	Email    string
}

// EnsureAdmin creates the administrator account when it does not exist yet.
// It reports whether a new account was created. An existing account is left
// untouched, including its password.
func EnsureAdmin(ctx context.Context, store Store, hasher Hasher, acct AdminAccount, log *slog.Logger) (User, bool, error) {
	const op = "identity.EnsureAdmin"

	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(acct.Username) == "" {
		log.Info("admin.bootstrap.disabled")
		return User{}, false, nil
	}

	existing, err := store.GetUserByUsername(ctx, acct.Username)
	if err == nil {
		log.Info("admin.bootstrap.exists", "user_id", existing.ID)
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return User{}, false, fmt.Errorf("%s: lookup: %w", op, err)
	}

	if acct.Password == "" {
		return User{}, false, invalid(op, "admin password is required")
	}
	hash, err := hasher.Hash(acct.Password)
	if err != nil {
		return User{}, false, fmt.Errorf("%s: hash: %w", op, err)
	}

	var email *string
	if e := strings.TrimSpace(acct.Email); e != "" {
		email = &e
	}

	u, err := store.CreateUser(ctx, CreateUserInput{
		Username:     acct.Username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      true,
		Now:          time.Now().UTC(),
	})
	if IsConflict(err) {
		// Another instance won the race.
		u, err = store.GetUserByUsername(ctx, acct.Username)
		if err != nil {
			return User{}, false, fmt.Errorf("%s: reload: %w", op, err)
		}
		return u, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("%s: create: %w", op, err)
	}

	log.Info("admin.bootstrap.created", "user_id", u.ID, "username", u.Username)
	return u, true, nil
}
