package invite

import (
	"context"
	"time"
)

// CreateRecord is a normalized invite insert payload.
type CreateRecord struct {
	ID        string
	TokenHash string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	Note      *string
}

// ConsumeRecord describes one use of an invite.
type ConsumeRecord struct {
	TokenHash  string
	ConsumedBy string
	Now        time.Time
}

// Store is the persistence boundary for invites.
//
// Consume must be atomic: it succeeds only while the invite is unrevoked,
// unexpired and below max_uses, and returns ErrNotFound or ErrNotActive
// otherwise.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Invite, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error)
	Consume(ctx context.Context, in ConsumeRecord) (Invite, error)
	Revoke(ctx context.Context, id string, now time.Time) error
}
