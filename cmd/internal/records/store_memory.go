package records

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	single map[string]Single
	pro    map[string]Pro
	broker map[string]BrokerAccount
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		single: make(map[string]Single),
		pro:    make(map[string]Pro),
		broker: make(map[string]BrokerAccount),
	}
}

func (s *MemoryStore) ListSingle(ctx context.Context, userID string) ([]Single, error) {
	return memList(ctx, &s.mu, s.single, userID)
}

func (s *MemoryStore) SaveSingle(ctx context.Context, rec Single) (Single, error) {
	return memSave(ctx, &s.mu, s.single, rec, false)
}

func (s *MemoryStore) ListPro(ctx context.Context, userID string) ([]Pro, error) {
	return memList(ctx, &s.mu, s.pro, userID)
}

func (s *MemoryStore) SavePro(ctx context.Context, rec Pro) (Pro, error) {
	return memSave(ctx, &s.mu, s.pro, rec, false)
}

func (s *MemoryStore) ListBroker(ctx context.Context, userID string) ([]BrokerAccount, error) {
	return memList(ctx, &s.mu, s.broker, userID)
}

func (s *MemoryStore) SaveBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error) {
	return memSave(ctx, &s.mu, s.broker, rec, false)
}

func (s *MemoryStore) UpdateBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error) {
	return memSave(ctx, &s.mu, s.broker, rec, true)
}

func (s *MemoryStore) DeleteBroker(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.broker[id]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(s.broker, id)
	return nil
}

func memList[T any, P metaPtr[T]](ctx context.Context, mu *sync.RWMutex, rows map[string]T, userID string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.RLock()
	out := make([]T, 0)
	for _, r := range rows {
		if P(&r).meta().UserID == userID {
			out = append(out, r)
		}
	}
	mu.RUnlock()

	sortByCreated[T, P](out)
	return out, nil
}

func memSave[T any, P metaPtr[T]](ctx context.Context, mu *sync.RWMutex, rows map[string]T, rec T, mustExist bool) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m := P(&rec).meta()

	mu.Lock()
	defer mu.Unlock()

	cur, ok := rows[m.ID]
	switch {
	case ok && P(&cur).meta().UserID != m.UserID:
		return zero, ErrNotFound
	case ok:
		m.CreatedAt = P(&cur).meta().CreatedAt
	case mustExist:
		return zero, ErrNotFound
	}
	rows[m.ID] = rec
	return rec, nil
}
