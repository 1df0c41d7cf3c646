package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"calcsync/cmd/internal/auth/session"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Subprotocol is offered to clients that ask for one. It is not required.
const Subprotocol = "calcsync.realtime.v1"

// GatewayConfig is the websocket surface configuration. Zero durations take defaults;
// a zero ReadIdleTimeout disables the read deadline (the heartbeat detects dead peers).
type GatewayConfig struct {
	OriginRequired bool
	AllowedOrigins []string
	DevInsecure    bool

	WriteTimeout      time.Duration
	ReadIdleTimeout   time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Gateway is the websocket entrypoint.
//
// It enforces origin policy, verifies the credential before upgrading, and
// runs one writer, one heartbeat and one reader per channel.
type Gateway struct {
	log  *slog.Logger
	ctrl *Controller
	cfg  GatewayConfig

	// Derived for websocket.Accept, which rejects cross-origin requests
	// unless the origin host matches a pattern.
	originPatterns []string
}

func NewGateway(log *slog.Logger, ctrl *Controller, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = writeTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = heartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = heartbeatTimeout
	}
	return &Gateway{
		log:            log,
		ctrl:           ctrl,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP handles GET /ws and GET /ws/{userID}.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := enforceOrigin(r, g.cfg.OriginRequired, g.cfg.AllowedOrigins); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	userID, err := g.ctrl.Admit(r.Context(), session.CredentialFromRequest(r))
	if err != nil {
		g.log.Info("ws.reject.auth", "reason", session.Reason(err), "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claimed := chi.URLParam(r, "userID"); claimed != "" && claimed != userID {
		g.ctrl.metrics.handshake("rejected")
		g.log.Info("ws.reject.identity", "claimed", claimed, "user_id", userID, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.ctrl.metrics.handshake("failed")
		g.log.Error("ws.accept.fail", "user_id", userID, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ch := g.ctrl.NewChannel(userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.ctrl.Close(ch, reason)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ch.Done():
				// Dropped by a failed send; queued messages are abandoned.
				shutdown(websocket.StatusTryAgainLater, "dropped")
				return
			case msg := <-ch.Outbound():
				if err := writeMessage(ctx, conn, msg, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "user_id", ch.UserID, "channel_id", ch.ID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	if err := g.ctrl.Open(ch); err != nil {
		g.log.Info("ws.open.fail", "user_id", ch.UserID, "channel_id", ch.ID, "err", err)
		shutdown(websocket.StatusInternalError, "open failed")
		<-writerDone
		return
	}

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "user_id", ch.UserID, "channel_id", ch.ID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		data, err := g.read(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "user_id", ch.UserID, "channel_id", ch.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}
		g.ctrl.HandleInbound(ch, data)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *Gateway) read(parent context.Context, conn *websocket.Conn) ([]byte, error) {
	ctx := parent
	if g.cfg.ReadIdleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.cfg.ReadIdleTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	return data, err
}

func writeMessage(parent context.Context, conn *websocket.Conn, msg []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
