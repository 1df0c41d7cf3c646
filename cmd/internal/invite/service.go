// Package invite manages registration invites. An invite is an opaque token
// an admin hands out; while registration is closed, presenting an active
// invite is the only way to create an account.
package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"calcsync/cmd/identity/ids"
	"calcsync/cmd/security/token"
)

const (
	defaultTokenBytes = 32
	defaultTTL        = 7 * 24 * time.Hour
	maxNoteLength     = 512
)

// Invite represents an invite row. The plain token is never stored.
type Invite struct {
	ID         string
	CreatedBy  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	MaxUses    int
	UsedCount  int
	RevokedAt  *time.Time
	Note       *string
	ConsumedAt *time.Time
	ConsumedBy *string
}

// Active reports whether the invite can still be used at now.
func (i Invite) Active(now time.Time) bool {
	return i.RevokedAt == nil && i.ExpiresAt.After(now) && i.UsedCount < i.MaxUses
}

// CreateInput describes invite creation.
type CreateInput struct {
	CreatedBy string
	TTL       time.Duration
	MaxUses   int
	Note      *string
	Now       time.Time
}

// ConsumeInput describes invite consumption.
type ConsumeInput struct {
	Token      string
	ConsumedBy string
	Now        time.Time
}

// Service manages invite creation, validation, and consumption.
type Service struct {
	store      Store
	tokenBytes int
	hashKey    []byte
}

// Option configures the Service.
type Option func(*Service) error

// WithTokenBytes sets the length of generated invite tokens in bytes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n < 16 {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// WithHashKey switches token hashing to HMAC-SHA256 with key.
func WithHashKey(key []byte) Option {
	return func(s *Service) error {
		if err := token.CheckKey(key); err != nil {
			return err
		}
		s.hashKey = key
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, tokenBytes: defaultTokenBytes}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateInvite creates a new invite and returns it with its plain token.
// The token is only ever available here.
func (s *Service) CreateInvite(ctx context.Context, in CreateInput) (Invite, string, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, "", err
	}

	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		return Invite{}, "", ErrInvalidInput
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxUses := in.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}
	note := trimPtr(in.Note)
	if note != nil && len(*note) > maxNoteLength {
		return Invite{}, "", ErrInvalidInput
	}

	plain, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return Invite{}, "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Invite{}, "", err
	}

	inv, err := s.store.Create(ctx, CreateRecord{
		ID:        id,
		TokenHash: token.Hash(plain, s.hashKey),
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		MaxUses:   maxUses,
		Note:      note,
	})
	if err != nil {
		return Invite{}, "", err
	}
	return inv, plain, nil
}

// ValidateInvite reports whether tok names an invite that is active at now.
// Unknown tokens are reported as (false, nil).
func (s *Service) ValidateInvite(ctx context.Context, tok string, now time.Time) (bool, Invite, error) {
	if err := ctx.Err(); err != nil {
		return false, Invite{}, err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return false, Invite{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	inv, err := s.store.GetByTokenHash(ctx, token.Hash(tok, s.hashKey))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, Invite{}, nil
		}
		return false, Invite{}, err
	}
	return inv.Active(now), inv, nil
}

// ConsumeInvite records one use of the invite named by in.Token.
func (s *Service) ConsumeInvite(ctx context.Context, in ConsumeInput) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	tok := strings.TrimSpace(in.Token)
	consumedBy := strings.TrimSpace(in.ConsumedBy)
	if tok == "" || consumedBy == "" {
		return Invite{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	return s.store.Consume(ctx, ConsumeRecord{
		TokenHash:  token.Hash(tok, s.hashKey),
		ConsumedBy: consumedBy,
		Now:        in.Now,
	})
}

// RevokeInvite disables an invite. Revoking twice is not an error.
func (s *Service) RevokeInvite(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.Revoke(ctx, id, now)
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
