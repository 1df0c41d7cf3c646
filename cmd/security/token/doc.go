// Package token provides opaque token generation and hashing for calcsync.
//
// Opaque tokens (registration invites) are stored only as a 64-char hex
// digest. With a configured key the digest is HMAC-SHA256(token, key),
// otherwise plain SHA-256(token).
package token
