package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Password errors.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("password too weak")
	ErrInvalidHash      = errors.New("invalid password hash")
)

const argon2Version = 19 // argon2.Version (0x13)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as
// required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies account passwords in PHC format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
type Hasher struct {
	Params    Argon2idParams
	MinLength int
	MaxLength int

	// RejectWeak refuses trivially guessable passwords (one repeated
	// character, short all-digit PINs, a small list of common passwords).
	RejectWeak bool
}

// DefaultHasher returns interactive-login parameters with parallelism
// clamped to [1..4].
func DefaultHasher() Hasher {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Hasher{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped above.
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength:  8,
		MaxLength:  256,
		RejectWeak: true,
	}
}

// Validate applies the password policy. Length counts runes, not bytes.
func (h Hasher) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if h.MinLength > 0 && n < h.MinLength {
		return ErrPasswordTooShort
	}
	if h.MaxLength > 0 && n > h.MaxLength {
		return ErrPasswordTooLong
	}
	if h.RejectWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
	"qwerty123": {}, "qwertyuiop": {}, "11111111": {}, "iloveyou": {}, "letmein1": {},
}

// looksVeryWeak is minimal and conservative; it is not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	allSame, onlyDigits := true, true
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			allSame = false
		}
		if !unicode.IsDigit(r) {
			onlyDigits = false
		}
	}
	if allSame || (onlyDigits && utf8.RuneCountInString(s) < 12) {
		return true
	}

	_, common := commonPasswords[strings.ToLower(s)]
	return common
}

// Hash validates password and returns its encoded Argon2id hash.
func (h Hasher) Hash(password string) (string, error) {
	if err := h.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.Params.Iterations, h.Params.MemoryKiB, h.Params.Parallelism, h.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.Params.MemoryKiB,
		h.Params.Iterations,
		h.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed hash, or one
// whose cost exceeds twice the configured cost, yields ErrInvalidHash.
func (h Hasher) Verify(encoded, password string) (bool, error) {
	got, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	if got.MemoryKiB > h.Params.MemoryKiB*2 || got.Iterations > h.Params.Iterations*2 || got.Parallelism > h.Params.Parallelism*2 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt, got.Iterations, got.MemoryKiB, got.Parallelism, got.KeyLength)
	return subtle.ConstantTimeCompare(key, want) == 1, nil
}

func decodeHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),       // #nosec G115 -- bounded above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded above.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded above.
	}, salt, key, nil
}
