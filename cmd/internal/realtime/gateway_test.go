package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"calcsync/cmd/identity"
	"calcsync/cmd/internal/auth/session"
	v1 "calcsync/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

type gatewayFixture struct {
	srv   *httptest.Server
	reg   *Registry
	disp  *Dispatcher
	codec session.TokenCodec
	clock *clockwork.FakeClock
	alice identity.User
	bob   identity.User
}

func newGatewayFixture(t *testing.T, tune ...func(*ControllerOptions, *GatewayConfig)) *gatewayFixture {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.TokenTTL = time.Hour
	cfg.JWTSecret = strings.Repeat("g", 40)
	codec, err := session.NewCodec(cfg)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	users := identity.NewMemoryStore()
	alice, err := users.CreateUser(context.Background(), identity.CreateUserInput{Username: "alice", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := users.CreateUser(context.Background(), identity.CreateUserInput{Username: "bob", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Now())
	log := discardLogger()
	reg := NewRegistry(log, nil)
	disp := NewDispatcher(reg, log, nil)
	var (
		copts ControllerOptions
		gcfg  GatewayConfig
	)
	for _, fn := range tune {
		fn(&copts, &gcfg)
	}
	ctrl := NewController(session.NewVerifier(codec, users, clock), reg, disp, log, nil, copts)
	gw := NewGateway(log, ctrl, gcfg)

	r := chi.NewRouter()
	r.Get("/ws", gw.ServeHTTP)
	r.Get("/ws/{userID}", gw.ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gatewayFixture{srv: srv, reg: reg, disp: disp, codec: codec, clock: clock, alice: alice, bob: bob}
}

func (f *gatewayFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := f.codec.Issue(userID, f.clock.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func (f *gatewayFixture) dial(t *testing.T, path, bearer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	pathOnly, query, _ := strings.Cut(path, "?")
	u.Path = pathOnly
	u.RawQuery = query

	h := http.Header{}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   h,
	})
}

// open dials, reads the ack and waits until the registry reaches want channels for userID.
func (f *gatewayFixture) open(t *testing.T, userID string, want int) *websocket.Conn {
	t.Helper()

	conn, resp, err := f.dial(t, "/ws", f.token(t, userID))
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })

	if typ := readMessage(t, conn)["type"]; typ != v1.TypeConnection {
		t.Fatalf("first message type=%v want connection", typ)
	}
	waitFor(t, "registration", func() bool { return f.reg.Len(userID) == want })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, err error, want int) {
	t.Helper()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != want {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status=%d want %d err=%v", status, want, err)
	}
}

func TestGateway_RejectsMissingCredential(t *testing.T) {
	f := newGatewayFixture(t)
	_, resp, err := f.dial(t, "/ws", "")
	expectStatus(t, resp, err, http.StatusUnauthorized)
	if f.reg.Total() != 0 {
		t.Fatalf("registry mutated")
	}
}

func TestGateway_RejectsInvalidCredential(t *testing.T) {
	f := newGatewayFixture(t)
	_, resp, err := f.dial(t, "/ws", "not-a-valid-token")
	expectStatus(t, resp, err, http.StatusUnauthorized)
}

func TestGateway_RejectsExpiredCredential(t *testing.T) {
	f := newGatewayFixture(t)
	tok := f.token(t, f.alice.ID)
	f.clock.Advance(2 * time.Hour)

	_, resp, err := f.dial(t, "/ws", tok)
	expectStatus(t, resp, err, http.StatusUnauthorized)
}

func TestGateway_PathIdentityMustMatchCredential(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := f.dial(t, "/ws/"+f.bob.ID, f.token(t, f.alice.ID))
	expectStatus(t, resp, err, http.StatusUnauthorized)

	conn, resp, err := f.dial(t, "/ws/"+f.alice.ID, f.token(t, f.alice.ID))
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("matching path dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	if typ := readMessage(t, conn)["type"]; typ != v1.TypeConnection {
		t.Fatalf("type=%v want connection", typ)
	}
}

func TestGateway_QueryTokenAccepted(t *testing.T) {
	f := newGatewayFixture(t)

	conn, resp, err := f.dial(t, "/ws?token="+url.QueryEscape(f.token(t, f.alice.ID)), "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ack := readMessage(t, conn)
	if ack["type"] != v1.TypeConnection || ack["message"] != v1.ConnectedMessage {
		t.Fatalf("ack=%v", ack)
	}
}

func TestGateway_PingPongIgnoresGarbage(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.open(t, f.alice.ID, 1)

	writeText(t, conn, `garbage`)
	writeText(t, conn, `{"type":"subscribe"}`)
	writeText(t, conn, `{"type":"ping"}`)

	m := readMessage(t, conn)
	if m["type"] != v1.TypePong {
		t.Fatalf("type=%v want pong", m["type"])
	}
	if _, ok := m["timestamp"].(string); !ok {
		t.Fatalf("pong without timestamp: %v", m)
	}
	if f.reg.Len(f.alice.ID) != 1 {
		t.Fatalf("channel dropped after malformed input")
	}
}

func TestGateway_TwoChannelsOneDisconnects(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.alice.ID

	c1 := f.open(t, alice, 1)
	c2 := f.open(t, alice, 2)
	bob := f.open(t, f.bob.ID, 1)

	got := f.disp.Broadcast(alice, Event{Category: v1.CategorySingle, Action: v1.ActionSave, Payload: map[string]string{"id": "r1"}})
	if got.Delivered != 2 {
		t.Fatalf("delivery=%+v want 2 delivered", got)
	}
	for i, c := range []*websocket.Conn{c1, c2} {
		m := readMessage(t, c)
		if m["type"] != v1.TypeDataUpdate || m["action"] != v1.ActionSave || m["calculator"] != v1.CategorySingle {
			t.Fatalf("C%d got %v", i+1, m)
		}
	}

	// Bob's next message must be the pong: nothing from alice's broadcast was queued ahead of it.
	writeText(t, bob, `{"type":"ping"}`)
	if m := readMessage(t, bob); m["type"] != v1.TypePong {
		t.Fatalf("bob got %v want pong", m)
	}

	_ = c1.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "C1 unregistered", func() bool { return f.reg.Len(alice) == 1 })

	got = f.disp.Broadcast(alice, Event{Category: v1.CategorySingle, Action: v1.ActionUpdate, Payload: map[string]string{"id": "r1"}})
	if got.Attempted != 1 || got.Delivered != 1 {
		t.Fatalf("delivery=%+v want 1 attempted and delivered", got)
	}
	if m := readMessage(t, c2); m["action"] != v1.ActionUpdate {
		t.Fatalf("C2 got %v", m)
	}

	_ = c2.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "alice entry removed", func() bool {
		for _, id := range f.reg.Identities() {
			if id == alice {
				return false
			}
		}
		return true
	})
}

func TestGateway_StalledReaderDroppedOthersKeepReceiving(t *testing.T) {
	f := newGatewayFixture(t, func(o *ControllerOptions, g *GatewayConfig) {
		o.SendQueueSize = minSendQueueSize
		g.WriteTimeout = 100 * time.Millisecond
	})
	alice := f.alice.ID

	// C1 never reads after the ack, so its socket buffers and then its queue fill up.
	f.open(t, alice, 1)
	c2 := f.open(t, alice, 2)
	c2.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	received := make(chan string, 1)
	go func() {
		defer close(received)
		for {
			_, b, err := c2.Read(ctx)
			if err != nil {
				return
			}
			var m struct {
				Action string `json:"action"`
			}
			_ = json.Unmarshal(b, &m)
			select {
			case received <- m.Action:
			case <-ctx.Done():
				return
			}
		}
	}()
	await := func(want string) {
		t.Helper()
		select {
		case got, ok := <-received:
			if !ok {
				t.Fatalf("C2 connection closed")
			}
			if got != want {
				t.Fatalf("C2 got action %q want %q", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("C2 did not receive %q", want)
		}
	}

	blob := map[string]string{"blob": strings.Repeat("x", 256<<10)}
	deadline := time.Now().Add(10 * time.Second)
	for f.reg.Len(alice) == 2 {
		if time.Now().After(deadline) {
			t.Fatalf("stalled channel was never dropped")
		}
		f.disp.Broadcast(alice, Event{Category: v1.CategorySingle, Action: v1.ActionSave, Payload: blob})
		await(v1.ActionSave)
	}
	waitFor(t, "stalled channel removed", func() bool { return f.reg.Len(alice) == 1 })

	got := f.disp.Broadcast(alice, Event{Category: v1.CategorySingle, Action: v1.ActionUpdate, Payload: map[string]string{"id": "r1"}})
	if got.Attempted != 1 || got.Delivered != 1 {
		t.Fatalf("delivery=%+v want 1 attempted and delivered", got)
	}
	await(v1.ActionUpdate)
}
