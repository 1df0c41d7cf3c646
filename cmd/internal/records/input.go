package records

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"calcsync/cmd/identity/ids"

	"github.com/google/uuid"
)

const (
	maxMatchNameChars   = 200
	maxAccountNameChars = 100
	defaultAccountType  = "betfair"
)

var accountTypeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// SingleInput is the request body for saving a single record. A missing id creates a new record.
type SingleInput struct {
	ID              string   `json:"id"`
	MatchName       string   `json:"match_name"`
	Stake           float64  `json:"stake"`
	Odds            float64  `json:"odds"`
	Commission      float64  `json:"commission"`
	PotentialProfit float64  `json:"potential_profit"`
	LayOdds         *float64 `json:"lay_odds"`
	LayStake        *float64 `json:"lay_stake"`
}

// ProInput is the request body for saving a pro record.
type ProInput struct {
	ID         string  `json:"id"`
	MatchName  string  `json:"match_name"`
	BackStake  float64 `json:"back_stake"`
	BackOdds   float64 `json:"back_odds"`
	LayStake   float64 `json:"lay_stake"`
	LayOdds    float64 `json:"lay_odds"`
	Commission float64 `json:"commission"`
	ProfitLoss float64 `json:"profit_loss"`
}

// BrokerInput is the request body for saving or updating a broker account.
// IsActive defaults to true when omitted.
type BrokerInput struct {
	ID             string  `json:"id"`
	AccountName    string  `json:"account_name"`
	Balance        float64 `json:"balance"`
	CommissionRate float64 `json:"commission_rate"`
	AccountType    string  `json:"account_type"`
	IsActive       *bool   `json:"is_active"`
}

func (in SingleInput) normalize() (SingleInput, error) {
	var err error
	if in.ID, err = normalizeID(in.ID); err != nil {
		return in, err
	}
	if in.MatchName, err = normalizeName("match_name", in.MatchName, maxMatchNameChars, false); err != nil {
		return in, err
	}
	checks := []struct {
		field string
		v     float64
	}{
		{"stake", in.Stake},
		{"odds", in.Odds},
	}
	for _, c := range checks {
		if err := nonNegative(c.field, c.v); err != nil {
			return in, err
		}
	}
	if err := percent("commission", in.Commission); err != nil {
		return in, err
	}
	if err := finite("potential_profit", in.PotentialProfit); err != nil {
		return in, err
	}
	if in.LayOdds != nil {
		if err := nonNegative("lay_odds", *in.LayOdds); err != nil {
			return in, err
		}
	}
	if in.LayStake != nil {
		if err := nonNegative("lay_stake", *in.LayStake); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (in ProInput) normalize() (ProInput, error) {
	var err error
	if in.ID, err = normalizeID(in.ID); err != nil {
		return in, err
	}
	if in.MatchName, err = normalizeName("match_name", in.MatchName, maxMatchNameChars, false); err != nil {
		return in, err
	}
	checks := []struct {
		field string
		v     float64
	}{
		{"back_stake", in.BackStake},
		{"back_odds", in.BackOdds},
		{"lay_stake", in.LayStake},
		{"lay_odds", in.LayOdds},
	}
	for _, c := range checks {
		if err := nonNegative(c.field, c.v); err != nil {
			return in, err
		}
	}
	if err := percent("commission", in.Commission); err != nil {
		return in, err
	}
	if err := finite("profit_loss", in.ProfitLoss); err != nil {
		return in, err
	}
	return in, nil
}

func (in BrokerInput) normalize() (BrokerInput, error) {
	var err error
	if in.ID, err = normalizeID(in.ID); err != nil {
		return in, err
	}
	if in.AccountName, err = normalizeName("account_name", in.AccountName, maxAccountNameChars, true); err != nil {
		return in, err
	}
	if err := finite("balance", in.Balance); err != nil {
		return in, err
	}
	if err := percent("commission_rate", in.CommissionRate); err != nil {
		return in, err
	}

	in.AccountType = strings.ToLower(strings.TrimSpace(in.AccountType))
	if in.AccountType == "" {
		in.AccountType = defaultAccountType
	}
	if !accountTypeRe.MatchString(in.AccountType) {
		return in, ValidationError{Field: "account_type", Msg: "must be a short lowercase identifier"}
	}
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
	return in, nil
}

// normalizeID accepts server-issued ULIDs and the UUIDs older clients generate.
func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || ids.Valid(id) {
		return id, nil
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String(), nil
	}
	return "", ValidationError{Field: "id", Msg: "must be a ULID or UUID"}
}

func normalizeName(field, s string, max int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", ValidationError{Field: field, Msg: "is required"}
	}
	if utf8.RuneCountInString(s) > max {
		return "", ValidationError{Field: field, Msg: "is too long"}
	}
	return s, nil
}

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ValidationError{Field: field, Msg: "must be a finite number"}
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if err := finite(field, v); err != nil {
		return err
	}
	if v < 0 {
		return ValidationError{Field: field, Msg: "must not be negative"}
	}
	return nil
}

func percent(field string, v float64) error {
	if err := nonNegative(field, v); err != nil {
		return err
	}
	if v > 100 {
		return ValidationError{Field: field, Msg: "must be between 0 and 100"}
	}
	return nil
}
