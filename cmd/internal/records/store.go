package records

import (
	"context"
	"sort"
)

// Store persists records. Every method is scoped to the owning user: a
// record owned by someone else behaves as absent.
type Store interface {
	ListSingle(ctx context.Context, userID string) ([]Single, error)
	// SaveSingle inserts rec, or updates it when rec.ID already exists for
	// rec.UserID. The stored CreatedAt is preserved on update.
	SaveSingle(ctx context.Context, rec Single) (Single, error)

	ListPro(ctx context.Context, userID string) ([]Pro, error)
	SavePro(ctx context.Context, rec Pro) (Pro, error)

	ListBroker(ctx context.Context, userID string) ([]BrokerAccount, error)
	SaveBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error)
	// UpdateBroker fails with ErrNotFound when the account does not exist.
	UpdateBroker(ctx context.Context, rec BrokerAccount) (BrokerAccount, error)
	DeleteBroker(ctx context.Context, userID, id string) error
}

type metaPtr[T any] interface {
	*T
	meta() *Meta
}

// sortByCreated orders rows oldest first, ties broken by id.
func sortByCreated[T any, P metaPtr[T]](rows []T) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := P(&rows[i]).meta(), P(&rows[j]).meta()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
