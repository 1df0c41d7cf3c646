package session

import (
	"strings"
	"time"
)

// Token formats.
const (
	FormatJWT    = "jwt"
	FormatPaseto = "paseto"
)

// Config defines the credential policy of a deployment.
//
// Env tags are relative; the app config nests this struct under AUTH_.
type Config struct {
	// Format selects the token codec: "jwt" (HS256) or "paseto" (v4.public).
	Format string `env:"TOKEN_FORMAT" envDefault:"jwt"`

	// Issuer is the value set in and required from the "iss" claim.
	Issuer string `env:"ISSUER" envDefault:"calcsync"`

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	// ClockSkew moves the verification instant forward. Issuers up to
	// ClockSkew ahead are accepted, and tokens stop verifying ClockSkew
	// before their exp.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"30s"`

	// JWTSecret signs HS256 tokens. Must be at least 32 bytes.
	JWTSecret string `env:"JWT_SECRET"`

	// PasetoV4SecretKeyHex is the hex Ed25519 secret key for v4.public tokens.
	PasetoV4SecretKeyHex string `env:"PASETO_V4_SECRET_KEY_HEX"`
}

// MinJWTSecretBytes is the minimum HS256 secret length.
const MinJWTSecretBytes = 32

// DefaultConfig returns the defaults without any key material.
func DefaultConfig() Config {
	return Config{
		Format:    FormatJWT,
		Issuer:    "calcsync",
		TokenTTL:  7 * 24 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// Validate checks the policy and that the key for the selected format is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" || c.TokenTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	switch c.Format {
	case FormatJWT:
		if len(c.JWTSecret) < MinJWTSecretBytes {
			return ErrConfig
		}
	case FormatPaseto:
		if strings.TrimSpace(c.PasetoV4SecretKeyHex) == "" {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}
