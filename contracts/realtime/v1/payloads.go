package v1

import "time"

// PayloadVersion is the schema version embedded in every data payload.
// Bump it when a payload struct changes incompatibly.
const PayloadVersion = 1

// SinglePayload is the data_update body for the single calculator.
type SinglePayload struct {
	Version         int       `json:"version"`
	ID              string    `json:"id"`
	MatchName       string    `json:"match_name"`
	Stake           float64   `json:"stake"`
	Odds            float64   `json:"odds"`
	Commission      float64   `json:"commission"`
	PotentialProfit float64   `json:"potential_profit"`
	LayOdds         *float64  `json:"lay_odds,omitempty"`
	LayStake        *float64  `json:"lay_stake,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProPayload is the data_update body for the pro calculator.
type ProPayload struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	MatchName  string    `json:"match_name"`
	BackStake  float64   `json:"back_stake"`
	BackOdds   float64   `json:"back_odds"`
	LayStake   float64   `json:"lay_stake"`
	LayOdds    float64   `json:"lay_odds"`
	Commission float64   `json:"commission"`
	ProfitLoss float64   `json:"profit_loss"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BrokerPayload is the data_update body for broker accounts.
type BrokerPayload struct {
	Version        int       `json:"version"`
	ID             string    `json:"id"`
	AccountName    string    `json:"account_name"`
	Balance        float64   `json:"balance"`
	CommissionRate float64   `json:"commission_rate"`
	AccountType    string    `json:"account_type"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeletedPayload is the data_update body for a delete action.
type DeletedPayload struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
}
