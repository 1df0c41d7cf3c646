package records

import (
	"context"
	"fmt"
	"log/slog"

	"calcsync/cmd/identity/ids"
	"calcsync/cmd/internal/realtime"
	v1 "calcsync/contracts/realtime/v1"

	"github.com/jonboulle/clockwork"
)

// Publisher announces an event to every live channel of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev realtime.Event) error
}

// Service validates writes, persists them and publishes data_update events.
type Service struct {
	store Store
	pub   Publisher
	clock clockwork.Clock
	log   *slog.Logger
}

func NewService(store Store, pub Publisher, clock clockwork.Clock, log *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, pub: pub, clock: clock, log: log}
}

func (s *Service) ListSingle(ctx context.Context, userID string) ([]Single, error) {
	return s.store.ListSingle(ctx, userID)
}

func (s *Service) SaveSingle(ctx context.Context, userID string, in SingleInput) (Single, error) {
	in, err := in.normalize()
	if err != nil {
		return Single{}, err
	}
	rec := Single{
		Meta:            s.newMeta(userID, in.ID),
		MatchName:       in.MatchName,
		Stake:           in.Stake,
		Odds:            in.Odds,
		Commission:      in.Commission,
		PotentialProfit: in.PotentialProfit,
		LayOdds:         in.LayOdds,
		LayStake:        in.LayStake,
	}
	out, err := s.store.SaveSingle(ctx, rec)
	if err != nil {
		return Single{}, fmt.Errorf("save single: %w", err)
	}
	s.publish(ctx, userID, v1.CategorySingle, v1.ActionSave, out.ID, out.Payload())
	return out, nil
}

func (s *Service) ListPro(ctx context.Context, userID string) ([]Pro, error) {
	return s.store.ListPro(ctx, userID)
}

func (s *Service) SavePro(ctx context.Context, userID string, in ProInput) (Pro, error) {
	in, err := in.normalize()
	if err != nil {
		return Pro{}, err
	}
	rec := Pro{
		Meta:       s.newMeta(userID, in.ID),
		MatchName:  in.MatchName,
		BackStake:  in.BackStake,
		BackOdds:   in.BackOdds,
		LayStake:   in.LayStake,
		LayOdds:    in.LayOdds,
		Commission: in.Commission,
		ProfitLoss: in.ProfitLoss,
	}
	out, err := s.store.SavePro(ctx, rec)
	if err != nil {
		return Pro{}, fmt.Errorf("save pro: %w", err)
	}
	s.publish(ctx, userID, v1.CategoryPro, v1.ActionSave, out.ID, out.Payload())
	return out, nil
}

func (s *Service) ListBroker(ctx context.Context, userID string) ([]BrokerAccount, error) {
	return s.store.ListBroker(ctx, userID)
}

func (s *Service) SaveBroker(ctx context.Context, userID string, in BrokerInput) (BrokerAccount, error) {
	in, err := in.normalize()
	if err != nil {
		return BrokerAccount{}, err
	}
	out, err := s.store.SaveBroker(ctx, brokerFromInput(s.newMeta(userID, in.ID), in))
	if err != nil {
		return BrokerAccount{}, fmt.Errorf("save broker: %w", err)
	}
	s.publish(ctx, userID, v1.CategoryBroker, v1.ActionSave, out.ID, out.Payload())
	return out, nil
}

// UpdateBroker replaces the account named by id. The body id, if any, is ignored.
func (s *Service) UpdateBroker(ctx context.Context, userID, id string, in BrokerInput) (BrokerAccount, error) {
	in.ID = id
	in, err := in.normalize()
	if err != nil {
		return BrokerAccount{}, err
	}
	if in.ID == "" {
		return BrokerAccount{}, ValidationError{Field: "id", Msg: "is required"}
	}
	out, err := s.store.UpdateBroker(ctx, brokerFromInput(s.newMeta(userID, in.ID), in))
	if err != nil {
		return BrokerAccount{}, fmt.Errorf("update broker: %w", err)
	}
	s.publish(ctx, userID, v1.CategoryBroker, v1.ActionUpdate, out.ID, out.Payload())
	return out, nil
}

func (s *Service) DeleteBroker(ctx context.Context, userID, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	if id == "" {
		return ValidationError{Field: "id", Msg: "is required"}
	}
	if err := s.store.DeleteBroker(ctx, userID, id); err != nil {
		return fmt.Errorf("delete broker: %w", err)
	}
	s.publish(ctx, userID, v1.CategoryBroker, v1.ActionDelete, id, v1.DeletedPayload{Version: v1.PayloadVersion, ID: id})
	return nil
}

// newMeta stamps a write. CreatedAt is provisional: stores keep the
// original value when the id already exists.
func (s *Service) newMeta(userID, id string) Meta {
	now := s.clock.Now().UTC()
	if id == "" {
		id = ids.MustULID(now)
	}
	return Meta{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func brokerFromInput(m Meta, in BrokerInput) BrokerAccount {
	return BrokerAccount{
		Meta:           m,
		AccountName:    in.AccountName,
		Balance:        in.Balance,
		CommissionRate: in.CommissionRate,
		AccountType:    in.AccountType,
		IsActive:       *in.IsActive,
	}
}

// publish runs after the write is durable. A publish failure is logged; the
// write itself has succeeded and is not rolled back.
func (s *Service) publish(ctx context.Context, userID, category, action, id string, payload any) {
	if s.pub == nil {
		return
	}
	ev := realtime.Event{
		Category:  category,
		Action:    action,
		Payload:   payload,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.pub.Publish(ctx, userID, ev); err != nil {
		s.log.Error("records.publish.fail", "user_id", userID, "category", category, "action", action, "id", id, "err", err)
		return
	}
	s.log.Debug("records.published", "user_id", userID, "category", category, "action", action, "id", id)
}

