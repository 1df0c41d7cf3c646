package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	v1 "calcsync/contracts/realtime/v1"

	"github.com/jonboulle/clockwork"
)

type stubVerifier map[string]string

func (s stubVerifier) Verify(_ context.Context, credential string) (string, error) {
	if u, ok := s[credential]; ok {
		return u, nil
	}
	return "", errors.New("bad credential")
}

func newTestController(t *testing.T, clock clockwork.Clock) (*Controller, *Registry) {
	t.Helper()
	r := NewRegistry(discardLogger(), nil)
	d := NewDispatcher(r, discardLogger(), nil)
	c := NewController(stubVerifier{"tok-alice": "alice"}, r, d, discardLogger(), nil, ControllerOptions{
		Clock: clock,
	})
	return c, r
}

func decodeType(t *testing.T, b []byte) string {
	t.Helper()
	var m struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m.Type
}

func TestController_AdmitRejectsWithoutRegistryMutation(t *testing.T) {
	t.Parallel()

	c, r := newTestController(t, nil)
	_, err := c.Admit(context.Background(), "forged")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err=%v want ErrUnauthenticated", err)
	}
	if r.Total() != 0 {
		t.Fatalf("registry mutated on rejection")
	}
}

func TestController_OpenSendsAckFirst(t *testing.T) {
	t.Parallel()

	c, r := newTestController(t, nil)
	user, err := c.Admit(context.Background(), "tok-alice")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	ch := c.NewChannel(user)
	if ch.State() != StateConnecting {
		t.Fatalf("state=%s want connecting", ch.State())
	}

	if err := c.Open(ch); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ch.State() != StateOpen {
		t.Fatalf("state=%s want open", ch.State())
	}
	if r.Len("alice") != 1 {
		t.Fatalf("channel not registered")
	}

	c.disp.Broadcast("alice", Event{Category: "single", Action: "save"})
	q := drain(ch)
	if len(q) != 2 {
		t.Fatalf("queued=%d want 2", len(q))
	}
	if typ := decodeType(t, q[0]); typ != v1.TypeConnection {
		t.Fatalf("first message type=%q want connection", typ)
	}
	if typ := decodeType(t, q[1]); typ != v1.TypeDataUpdate {
		t.Fatalf("second message type=%q want data_update", typ)
	}
}

func TestController_OpenAfterCloseFails(t *testing.T) {
	t.Parallel()

	c, r := newTestController(t, nil)
	ch := c.NewChannel("alice")
	c.Close(ch, "test")

	if err := c.Open(ch); err == nil {
		t.Fatalf("open of closed channel should fail")
	}
	if r.Len("alice") != 0 {
		t.Fatalf("closed channel leaked into registry")
	}
}

func TestController_PingPongAndIgnoredInput(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	c, _ := newTestController(t, clock)
	ch := c.NewChannel("alice")
	if err := c.Open(ch); err != nil {
		t.Fatalf("open: %v", err)
	}
	drain(ch)

	for _, in := range []string{`not json`, `{"type":"pong"}`, `[]`, `{"type":`} {
		c.HandleInbound(ch, []byte(in))
	}
	if q := drain(ch); len(q) != 0 {
		t.Fatalf("ignored input produced %d messages", len(q))
	}
	if ch.State() != StateOpen {
		t.Fatalf("malformed input closed the channel")
	}

	c.HandleInbound(ch, []byte(`{"type":"ping"}`))
	q := drain(ch)
	if len(q) != 1 {
		t.Fatalf("got %d replies want 1", len(q))
	}
	var pong v1.Pong
	if err := json.Unmarshal(q[0], &pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if pong.Type != v1.TypePong || !pong.Timestamp.Equal(clock.Now()) {
		t.Fatalf("pong=%+v", pong)
	}
}

func TestController_EveryPingAnswered(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	c, _ := newTestController(t, clock)
	ch := c.NewChannel("alice")
	if err := c.Open(ch); err != nil {
		t.Fatalf("open: %v", err)
	}
	drain(ch)

	const pings = 40
	pongs := 0
	for i := 0; i < pings; i++ {
		c.HandleInbound(ch, []byte(`{"type":"ping"}`))
		for _, msg := range drain(ch) {
			if decodeType(t, msg) != v1.TypePong {
				t.Fatalf("unexpected reply %s", msg)
			}
			pongs++
		}
	}
	if pongs != pings {
		t.Fatalf("pongs=%d want %d", pongs, pings)
	}
	if ch.State() != StateOpen {
		t.Fatalf("state=%s want open", ch.State())
	}
}

func TestController_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c, r := newTestController(t, nil)
	ch := c.NewChannel("alice")
	if err := c.Open(ch); err != nil {
		t.Fatalf("open: %v", err)
	}

	c.Close(ch, "first")
	c.Close(ch, "second")

	if ch.State() != StateClosed {
		t.Fatalf("state=%s want closed", ch.State())
	}
	if len(r.Identities()) != 0 {
		t.Fatalf("identity entry not removed")
	}
}
