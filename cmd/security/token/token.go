package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// MinKeyBytes is the smallest accepted HMAC key.
const MinKeyBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hash hashes an opaque token for storage: HMAC-SHA256 when key is set,
// SHA-256 otherwise.
func Hash(tok string, key []byte) string {
	if len(key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, key)
}

// CheckKey accepts an empty key (SHA-256 mode) or one of at least
// MinKeyBytes.
func CheckKey(key []byte) error {
	if len(key) > 0 && len(key) < MinKeyBytes {
		return ErrKeyTooShort
	}
	return nil
}

// NewOpaque returns nBytes of crypto/rand entropy, base64url encoded
// without padding.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", ErrInvalidSize
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
