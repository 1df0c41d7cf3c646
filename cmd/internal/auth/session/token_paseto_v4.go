package session

import (
	"errors"
	"fmt"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoV4PublicCodec struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicCodec builds a TokenCodec based on PASETO v4.public
// (Ed25519). Issuer and time rules are enforced on every Verify.
func NewPasetoV4PublicCodec(cfg Config) (TokenCodec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicCodec{
		issuer:    cfg.Issuer,
		ttl:       cfg.TokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (c *pasetoV4PublicCodec) Issue(subject string, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("session: empty subject")
	}
	exp := now.Add(c.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(subject)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	return tok.V4Sign(c.secret, nil), exp, nil
}

func (c *pasetoV4PublicCodec) Verify(token string, now time.Time) (Claims, error) {
	// Checked at now+skew, as in the JWT codec: tokens are rejected skew
	// before their stated exp.
	validNow := now.Add(c.clockSkew)

	// Fresh parser per call so rules never accumulate. Expiry is checked
	// against validNow by ValidAt rather than the wall clock.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(c.public, token, nil)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	sub, _ := parsed.GetSubject()
	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	return Claims{Subject: sub, Issuer: iss, IssuedAt: iat, ExpiresAt: exp}, nil
}
