package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultUserCacheTTL = 30 * time.Second

// CachedStore fronts a Store with a Redis read-through cache for
// GetUserByID, the lookup every realtime handshake performs.
//
// Cached entries never carry PasswordHash. Redis failures fall through to
// the underlying store.
type CachedStore struct {
	inner  Store
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewCachedStore wraps inner. A non-positive ttl selects the default.
func NewCachedStore(inner Store, rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl, prefix: "calcsync:user:", log: log}
}

type cachedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	UsernameNorm string    `json:"username_norm"`
	Email        *string   `json:"email,omitempty"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *CachedStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	return s.inner.CreateUser(ctx, in)
}

func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.inner.GetUserByUsername(ctx, username)
}

func (s *CachedStore) GetUserByID(ctx context.Context, id string) (User, error) {
	key := s.prefix + id

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if jerr := json.Unmarshal(raw, &cu); jerr == nil {
			return User{
				ID:           cu.ID,
				Username:     cu.Username,
				UsernameNorm: cu.UsernameNorm,
				Email:        cu.Email,
				IsActive:     cu.IsActive,
				IsAdmin:      cu.IsAdmin,
				CreatedAt:    cu.CreatedAt,
				UpdatedAt:    cu.UpdatedAt,
			}, nil
		}
		s.log.Warn("identity.cache.decode.fail", "user_id", id)
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn("identity.cache.get.fail", "user_id", id, "err", err)
	}

	u, err := s.inner.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	b, _ := json.Marshal(cachedUser{
		ID:           u.ID,
		Username:     u.Username,
		UsernameNorm: u.UsernameNorm,
		Email:        u.Email,
		IsActive:     u.IsActive,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		s.log.Warn("identity.cache.set.fail", "user_id", id, "err", err)
	}
	return u, nil
}

// Invalidate drops the cached entry for id.
func (s *CachedStore) Invalidate(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.prefix+id).Err()
}

var _ Store = (*CachedStore)(nil)
