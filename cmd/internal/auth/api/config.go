package authapi

import (
	"errors"
	"time"

	"calcsync/cmd/security/token"
)

// ErrConfig is returned by Config.Validate.
var ErrConfig = errors.New("invalid auth api config")

// Config controls auth API behavior and security defaults.
//
// Env tags are relative; the app config nests this struct under AUTH_API_.
type Config struct {
	TrustProxy       bool  `env:"TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes     int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RegistrationOpen bool  `env:"REGISTRATION_OPEN" envDefault:"true"`

	LoginIPMax    int           `env:"LOGIN_IP_MAX" envDefault:"20"`
	LoginIPWindow time.Duration `env:"LOGIN_IP_WINDOW" envDefault:"5m"`

	// LoginUserWindow is how long failures against one username are remembered.
	LoginUserWindow time.Duration `env:"LOGIN_USER_WINDOW" envDefault:"15m"`

	LockoutShortThreshold  int           `env:"LOGIN_LOCKOUT_SHORT_THRESHOLD" envDefault:"5"`
	LockoutShortDuration   time.Duration `env:"LOGIN_LOCKOUT_SHORT_DURATION" envDefault:"5m"`
	LockoutLongThreshold   int           `env:"LOGIN_LOCKOUT_LONG_THRESHOLD" envDefault:"10"`
	LockoutLongDuration    time.Duration `env:"LOGIN_LOCKOUT_LONG_DURATION" envDefault:"30m"`
	LockoutSevereThreshold int           `env:"LOGIN_LOCKOUT_SEVERE_THRESHOLD" envDefault:"20"`
	LockoutSevereDuration  time.Duration `env:"LOGIN_LOCKOUT_SEVERE_DURATION" envDefault:"2h"`

	// Invites let admins admit users while registration is closed.
	InviteTTL        time.Duration `env:"INVITE_TTL" envDefault:"168h"`
	InviteMaxTTL     time.Duration `env:"INVITE_MAX_TTL" envDefault:"720h"`
	InviteMaxUses    int           `env:"INVITE_MAX_USES" envDefault:"1"`
	InviteMaxUsesMax int           `env:"INVITE_MAX_USES_MAX" envDefault:"100"`
	InviteHashKey    string        `env:"INVITE_HASH_KEY"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:           1 << 20,
		RegistrationOpen:       true,
		LoginIPMax:             20,
		LoginIPWindow:          5 * time.Minute,
		LoginUserWindow:        15 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   5 * time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    30 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  2 * time.Hour,
		InviteTTL:              7 * 24 * time.Hour,
		InviteMaxTTL:           30 * 24 * time.Hour,
		InviteMaxUses:          1,
		InviteMaxUsesMax:       100,
	}
}

// Validate rejects non-positive sizes and windows, out-of-order lockout
// thresholds, invite caps below their defaults and a short invite hash key. A zero threshold disables that tier; a zero LoginIPMax
// disables IP throttling.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 || c.LoginIPMax < 0 {
		return ErrConfig
	}
	if c.LoginIPWindow <= 0 || c.LoginUserWindow <= 0 {
		return ErrConfig
	}
	if c.InviteTTL <= 0 || c.InviteMaxTTL < c.InviteTTL || c.InviteMaxUses <= 0 || c.InviteMaxUsesMax < c.InviteMaxUses {
		return ErrConfig
	}
	if err := token.CheckKey([]byte(c.InviteHashKey)); err != nil {
		return ErrConfig
	}

	prev := 0
	for _, tier := range []struct {
		threshold int
		duration  time.Duration
	}{
		{c.LockoutShortThreshold, c.LockoutShortDuration},
		{c.LockoutLongThreshold, c.LockoutLongDuration},
		{c.LockoutSevereThreshold, c.LockoutSevereDuration},
	} {
		if tier.threshold < 0 {
			return ErrConfig
		}
		if tier.threshold == 0 {
			continue
		}
		if tier.duration <= 0 || tier.threshold <= prev {
			return ErrConfig
		}
		prev = tier.threshold
	}
	return nil
}
