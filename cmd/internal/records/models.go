package records

import (
	"time"

	v1 "calcsync/contracts/realtime/v1"
)

// Meta is the ownership and bookkeeping shared by every record.
type Meta struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Meta) meta() *Meta { return m }

// Single is one single-calculator record.
type Single struct {
	Meta
	MatchName       string
	Stake           float64
	Odds            float64
	Commission      float64
	PotentialProfit float64
	LayOdds         *float64
	LayStake        *float64
}

// Payload renders the versioned wire body.
func (s Single) Payload() v1.SinglePayload {
	return v1.SinglePayload{
		Version:         v1.PayloadVersion,
		ID:              s.ID,
		MatchName:       s.MatchName,
		Stake:           s.Stake,
		Odds:            s.Odds,
		Commission:      s.Commission,
		PotentialProfit: s.PotentialProfit,
		LayOdds:         s.LayOdds,
		LayStake:        s.LayStake,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

// Pro is one pro-calculator (back/lay) record.
type Pro struct {
	Meta
	MatchName  string
	BackStake  float64
	BackOdds   float64
	LayStake   float64
	LayOdds    float64
	Commission float64
	ProfitLoss float64
}

func (p Pro) Payload() v1.ProPayload {
	return v1.ProPayload{
		Version:    v1.PayloadVersion,
		ID:         p.ID,
		MatchName:  p.MatchName,
		BackStake:  p.BackStake,
		BackOdds:   p.BackOdds,
		LayStake:   p.LayStake,
		LayOdds:    p.LayOdds,
		Commission: p.Commission,
		ProfitLoss: p.ProfitLoss,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

// BrokerAccount is one exchange or bookmaker account.
type BrokerAccount struct {
	Meta
	AccountName    string
	Balance        float64
	CommissionRate float64
	AccountType    string
	IsActive       bool
}

func (b BrokerAccount) Payload() v1.BrokerPayload {
	return v1.BrokerPayload{
		Version:        v1.PayloadVersion,
		ID:             b.ID,
		AccountName:    b.AccountName,
		Balance:        b.Balance,
		CommissionRate: b.CommissionRate,
		AccountType:    b.AccountType,
		IsActive:       b.IsActive,
		CreatedAt:      b.CreatedAt.UTC(),
		UpdatedAt:      b.UpdatedAt.UTC(),
	}
}
