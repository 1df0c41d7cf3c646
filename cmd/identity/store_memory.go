package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"calcsync/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]User
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[usernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if emailNorm != nil {
		if _, ok := s.byEmail[*emailNorm]; ok {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}

	u := User{
		ID:           id,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[id] = u
	s.byUsername[usernameNorm] = id
	if emailNorm != nil {
		s.byEmail[*emailNorm] = id
	}
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByUsername", Resource: "user"}
	}
	return s.byID[id], nil
}

// SetActive toggles an account. Deactivated users fail credential verification.
func (s *MemoryStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.SetActive", Resource: "user"}
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	s.byID[id] = u
	return nil
}

var _ Store = (*MemoryStore)(nil)
