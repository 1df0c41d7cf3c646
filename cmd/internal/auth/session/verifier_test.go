package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calcsync/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

type verifierFixture struct {
	clock    *clockwork.FakeClock
	codec    TokenCodec
	users    *identity.MemoryStore
	verifier *Verifier
	user     identity.User
}

func newVerifierFixture(t *testing.T) verifierFixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.TokenTTL = time.Hour
	cfg.JWTSecret = strings.Repeat("v", 40)
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	users := identity.NewMemoryStore()
	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Username: "alice", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return verifierFixture{
		clock:    clock,
		codec:    codec,
		users:    users,
		verifier: NewVerifier(codec, users, clock),
		user:     u,
	}
}

func TestVerifier_Accepts(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	tok, _, err := f.codec.Issue(f.user.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := f.verifier.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != f.user.ID {
		t.Fatalf("identity=%q want %q", got, f.user.ID)
	}
}

func TestVerifier_ExpiredRejectedDespiteValidSignature(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	tok, _, err := f.codec.Issue(f.user.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.clock.Advance(time.Hour + time.Second)

	_, err = f.verifier.Verify(context.Background(), tok)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if Reason(err) != ReasonInvalidToken {
		t.Fatalf("reason=%q", Reason(err))
	}
}

func TestVerifier_Rejections(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	now := f.clock.Now()

	unknown, _, _ := f.codec.Issue("01HZY0000000000000000000AB", now)

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "calcsync",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	noSubTok, err := noSub.SignedString([]byte(strings.Repeat("v", 40)))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	inactive, err := f.users.CreateUser(context.Background(), identity.CreateUserInput{Username: "mallory", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.users.SetActive(inactive.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	inactiveTok, _, _ := f.codec.Issue(inactive.ID, now)

	cases := []struct {
		name   string
		cred   string
		reason string
	}{
		{name: "missing", cred: "  ", reason: ReasonMissing},
		{name: "garbage", cred: "not-a-token", reason: ReasonInvalidToken},
		{name: "no subject", cred: noSubTok, reason: ReasonNoSubject},
		{name: "unknown user", cred: unknown, reason: ReasonUnknownUser},
		{name: "inactive user", cred: inactiveTok, reason: ReasonInactiveUser},
	}

	for _, tc := range cases {
		_, err := f.verifier.Verify(context.Background(), tc.cred)
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", tc.name, err)
		}
		if got := Reason(err); got != tc.reason {
			t.Fatalf("%s: reason=%q want %q", tc.name, got, tc.reason)
		}
	}
}

type failingLookup struct{}

func (failingLookup) GetUserByID(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("db down")
}

func TestVerifier_LookupFailureIsUnauthenticated(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	v := NewVerifier(f.codec, failingLookup{}, f.clock)
	tok, _, _ := f.codec.Issue(f.user.ID, f.clock.Now())

	_, err := v.Verify(context.Background(), tok)
	if !errors.Is(err, ErrUnauthenticated) || Reason(err) != ReasonLookupFailed {
		t.Fatalf("expected lookup_failed rejection, got %v", err)
	}
}

func TestCredentialFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "case-insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "?token=qqq", want: "qqq"},
		{name: "header wins", header: "Bearer hhh", query: "?token=qqq", want: "hhh"},
		{name: "wrong scheme", header: "Basic abc", query: "?token=qqq", want: ""},
		{name: "none", want: ""},
	}

	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws"+tc.query, nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := CredentialFromRequest(r); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}
