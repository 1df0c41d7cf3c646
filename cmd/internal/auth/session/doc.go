// Package session issues and verifies the bearer credentials calcsync
// sessions present over HTTP and at the realtime handshake.
//
// A deployment uses exactly one token format and one key: HS256 JWT
// (default) or PASETO v4.public. Verifier turns a credential into a trusted
// user id, checking signature, expiry, subject and the user record.
package session
