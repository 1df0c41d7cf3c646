package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtHS256Codec struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewJWTHS256Codec builds a TokenCodec for HS256-signed JWTs.
func NewJWTHS256Codec(cfg Config) (TokenCodec, error) {
	if len(cfg.JWTSecret) < MinJWTSecretBytes {
		return nil, ErrConfig
	}
	return &jwtHS256Codec{
		issuer:    cfg.Issuer,
		ttl:       cfg.TokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.JWTSecret),
	}, nil
}

func (c *jwtHS256Codec) Issue(subject string, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("session: empty subject")
	}
	exp := now.Add(c.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *jwtHS256Codec) Verify(token string, now time.Time) (Claims, error) {
	// Checked at now+skew: nbf and iat accept issuers up to skew ahead, and
	// tokens are rejected skew before their stated exp.
	validNow := now.Add(c.clockSkew)

	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return validNow }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	out := Claims{Subject: rc.Subject, Issuer: rc.Issuer}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}
