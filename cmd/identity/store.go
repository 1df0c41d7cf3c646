package identity

import (
	"context"
	"strings"
	"time"
)

// User is a calcsync account. ID is the realtime identity of every channel
// the user opens.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        *string
	PasswordHash string

	IsActive bool
	IsAdmin  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUserInput describes a new account. PasswordHash is produced by a
// Hasher; stores never see plain passwords.
type CreateUserInput struct {
	Username     string
	Email        *string
	PasswordHash string
	IsAdmin      bool
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
}

// validateCreate normalizes in and returns the normalized username/email.
func validateCreate(op string, in CreateUserInput) (username, usernameNorm string, email, emailNorm *string, err error) {
	username = strings.TrimSpace(in.Username)
	if username == "" {
		return "", "", nil, nil, invalid(op, "username is required")
	}
	if len(username) > 64 {
		return "", "", nil, nil, invalid(op, "username too long")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return "", "", nil, nil, invalid(op, "password hash is required")
	}

	if in.Email != nil {
		e := strings.TrimSpace(*in.Email)
		if e != "" {
			if !strings.Contains(e, "@") {
				return "", "", nil, nil, invalid(op, "invalid email")
			}
			n := NormalizeEmail(e)
			email, emailNorm = &e, &n
		}
	}

	return username, NormalizeUsername(username), email, emailNorm, nil
}
