package invite

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps invites in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Invite
	byHash map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Invite),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.MaxUses <= 0 {
		return Invite{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[in.TokenHash]; ok {
		return Invite{}, ErrInvalidInput
	}
	inv := &Invite{
		ID:        in.ID,
		CreatedBy: in.CreatedBy,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
		MaxUses:   in.MaxUses,
		Note:      in.Note,
	}
	s.byID[in.ID] = inv
	s.byHash[in.TokenHash] = in.ID
	return *inv, nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) Consume(ctx context.Context, in ConsumeRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[in.TokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	inv := s.byID[id]
	if !inv.Active(in.Now) {
		return Invite{}, ErrNotActive
	}
	at, by := in.Now, in.ConsumedBy
	inv.UsedCount++
	inv.ConsumedAt = &at
	inv.ConsumedBy = &by
	return *inv, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if inv.RevokedAt == nil {
		at := now
		inv.RevokedAt = &at
	}
	return nil
}
