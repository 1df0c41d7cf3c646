package session

import (
	"fmt"
	"time"
)

// Claims is the identity envelope carried by a credential.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies signed, time-bounded tokens.
// Verify returns ErrInvalidToken (possibly wrapped) for any rejection.
type TokenCodec interface {
	Issue(subject string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Claims, error)
}

// NewCodec builds the codec selected by cfg.Format.
func NewCodec(cfg Config) (TokenCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Format {
	case FormatJWT:
		return NewJWTHS256Codec(cfg)
	case FormatPaseto:
		return NewPasetoV4PublicCodec(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown token format %q", ErrConfig, cfg.Format)
	}
}
