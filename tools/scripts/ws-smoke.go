// Package main provides a CI-friendly smoke test for calcsync realtime.
//
// It validates:
//   - login (or register) over the auth API
//   - handshake + subprotocol selection + connection ack
//   - ping -> pong on the same channel only
//   - a record write reaching both channels of the user as data_update
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "calcsync/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "calcsync.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type inbound struct {
	Type string
	Raw  []byte
}

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan inbound
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		username = flag.String("user", "smoke", "Username")
		password = flag.String("password", "smoke-password", "Password")
		register = flag.Bool("register", false, "Register the user before logging in")
		match    = flag.String("match", "smoke match", "match_name of the record to write")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := websocketURL(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	httpc := &http.Client{Timeout: *timeout}

	if *register {
		mustPost(root, httpc, *baseURL+"/api/auth/register", "", map[string]string{"username": *username, "password": *password}, http.StatusCreated, nil)
	}
	var login struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	mustPost(root, httpc, *baseURL+"/api/auth/login", "", map[string]string{"username": *username, "password": *password}, http.StatusOK, &login)
	if login.AccessToken == "" {
		fatalf("login returned no access_token")
	}

	a := mustConnect(root, "A", wsURL, *origin, login.AccessToken, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(root, "B", wsURL, *origin, login.AccessToken, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: user=%s origin=%q\n", login.User.ID, *origin)
	}

	mustWrite(root, a.conn, []byte(`{"type":"ping"}`), *timeout)
	a.mustReadUntilType(root, v1.TypePong, *timeout)
	mustAssertNoType(root, b, v1.TypePong, 300*time.Millisecond)

	var saved struct {
		ID string `json:"id"`
	}
	mustPost(root, httpc, *baseURL+"/api/single/data", login.AccessToken,
		map[string]any{"match_name": *match, "stake": 10, "odds": 2.5, "commission": 2}, http.StatusOK, &saved)

	for _, c := range []*smokeClient{a, b} {
		msg := c.mustReadUntilType(root, v1.TypeDataUpdate, *timeout)
		var u v1.DataUpdate
		if err := json.Unmarshal(msg.Raw, &u); err != nil {
			fatalf("decode data_update (%s): %v", c.name, err)
		}
		var data struct {
			ID        string `json:"id"`
			MatchName string `json:"match_name"`
		}
		_ = json.Unmarshal(u.Data, &data)
		if u.Calculator != v1.CategorySingle || u.Action != v1.ActionSave || data.ID != saved.ID || data.MatchName != *match {
			fatalf("unexpected data_update (%s): %s", c.name, msg.Raw)
		}
		if *verbose {
			fmt.Printf("%s: data_update id=%s\n", c.name, data.ID)
		}
	}

	fmt.Println("OK")
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustPost(parent context.Context, httpc *http.Client, target, token string, body any, wantStatus int, out any) {
	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(parent, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		var e struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		fatalf("POST %s: status=%d want=%d code=%q msg=%q", target, resp.StatusCode, wantStatus, e.Error.Code, e.Error.Message)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatalf("decode %s: %v", target, err)
		}
	}
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan inbound, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	c.mustReadUntilType(parent, v1.TypeConnection, stepTimeout)
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var head struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
				c.fail(fmt.Errorf("bad message: %s", data))
				return
			}

			select {
			case c.inbox <- inbound{Type: head.Type, Raw: data}:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func mustAssertNoType(parent context.Context, c *smokeClient, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case msg, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if msg.Type == forbiddenType {
				fatalf("unexpected %s received (%s)", forbiddenType, c.name)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) inbound {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case msg, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if msg.Type == wantType {
				return msg
			}
			fatalf("unexpected message type (%s): got=%q want=%q", c.name, msg.Type, wantType)
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, b []byte, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
