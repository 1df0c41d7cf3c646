package session

import (
	"context"
	"net/http"
	"strings"

	"calcsync/cmd/identity"

	"github.com/jonboulle/clockwork"
)

// UserLookup resolves a subject to a user record.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (identity.User, error)
}

// Verifier turns a bearer credential into a trusted user id.
//
// It is pure apart from the clock and the codec key: no retries, no side
// effects. Every rejection matches ErrUnauthenticated.
type Verifier struct {
	codec TokenCodec
	users UserLookup
	clock clockwork.Clock
}

// NewVerifier constructs a Verifier. A nil clock selects the real clock.
func NewVerifier(codec TokenCodec, users UserLookup, clock clockwork.Clock) *Verifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Verifier{codec: codec, users: users, clock: clock}
}

// Verify checks signature, expiry, subject and that an active user exists.
func (v *Verifier) Verify(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", UnauthenticatedError{Reason: ReasonMissing}
	}

	claims, err := v.codec.Verify(credential, v.clock.Now())
	if err != nil {
		return "", UnauthenticatedError{Reason: ReasonInvalidToken, Err: err}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", UnauthenticatedError{Reason: ReasonNoSubject}
	}

	u, err := v.users.GetUserByID(ctx, claims.Subject)
	switch {
	case identity.IsNotFound(err):
		return "", UnauthenticatedError{Reason: ReasonUnknownUser}
	case err != nil:
		return "", UnauthenticatedError{Reason: ReasonLookupFailed, Err: err}
	case !u.IsActive:
		return "", UnauthenticatedError{Reason: ReasonInactiveUser}
	}
	return u.ID, nil
}

// CredentialFromRequest extracts the bearer credential of r: the
// Authorization header first, then the "token" query parameter (browsers
// cannot set headers on websocket upgrades).
func CredentialFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		parts := strings.Fields(h)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
