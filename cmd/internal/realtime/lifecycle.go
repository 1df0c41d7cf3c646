package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	v1 "calcsync/contracts/realtime/v1"

	"github.com/jonboulle/clockwork"
)

// Verifier turns a credential into a trusted user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// ControllerOptions tunes per-channel resources. Zero values take defaults.
type ControllerOptions struct {
	SendQueueSize int
	Clock         clockwork.Clock
}

// Controller drives each channel through Connecting → Open → Closing → Closed.
type Controller struct {
	verifier Verifier
	reg      *Registry
	disp     *Dispatcher
	log      *slog.Logger
	metrics  *Metrics
	clock    clockwork.Clock

	queueSize int
}

func NewController(v Verifier, reg *Registry, disp *Dispatcher, log *slog.Logger, metrics *Metrics, opts ControllerOptions) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	if opts.SendQueueSize < minSendQueueSize {
		opts.SendQueueSize = minSendQueueSize
	}
	return &Controller{
		verifier:  v,
		reg:       reg,
		disp:      disp,
		log:       log,
		metrics:   metrics,
		clock:     opts.Clock,
		queueSize: opts.SendQueueSize,
	}
}

// Registry exposes the controller's registry for health reporting.
func (c *Controller) Registry() *Registry { return c.reg }

// Admit verifies credential. Any failure is ErrUnauthenticated and the
// registry is untouched.
func (c *Controller) Admit(ctx context.Context, credential string) (string, error) {
	userID, err := c.verifier.Verify(ctx, credential)
	if err != nil {
		c.metrics.handshake("rejected")
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return userID, nil
}

// NewChannel builds a Connecting channel for an admitted user.
func (c *Controller) NewChannel(userID string) *Channel {
	return NewChannel(NewChannelID(c.clock.Now()), userID, c.queueSize)
}

// Open queues the connection ack, registers ch and marks it Open. The ack
// is queued first so it precedes any broadcast on this channel.
func (c *Controller) Open(ch *Channel) error {
	ack, err := json.Marshal(v1.NewConnection(c.clock.Now()))
	if err != nil {
		return fmt.Errorf("encode ack: %w", err)
	}
	if err := c.disp.SendDirect(ch, ack); err != nil {
		c.metrics.handshake("failed")
		return fmt.Errorf("send ack: %w", err)
	}
	if !c.reg.Register(ch.UserID, ch) {
		c.metrics.handshake("failed")
		return ErrChannelClosed
	}
	if !ch.open() {
		c.reg.Unregister(ch.UserID, ch)
		c.metrics.handshake("failed")
		return ErrChannelClosed
	}

	c.metrics.handshake("accepted")
	c.log.Info("channel.open", "user_id", ch.UserID, "channel_id", ch.ID, "user_channels", c.reg.Len(ch.UserID))
	return nil
}

// HandleInbound processes one inbound payload. Every ping is answered with
// a pong on ch only; everything else is ignored. A peer that pings faster
// than it reads fills its own send queue and is dropped by SendDirect.
func (c *Controller) HandleInbound(ch *Channel, raw []byte) {
	if ch.State() != StateOpen {
		return
	}
	if !v1.ParsePing(raw) {
		c.metrics.inbound("ignored")
		return
	}

	pong, err := json.Marshal(v1.NewPong(c.clock.Now()))
	if err != nil {
		return
	}
	c.metrics.inbound("ping")
	_ = c.disp.SendDirect(ch, pong)
}

// Close tears ch down. Calling it more than once has no further effect.
func (c *Controller) Close(ch *Channel, reason string) {
	if closeChannel(c.reg, ch) {
		c.log.Info("channel.close", "user_id", ch.UserID, "channel_id", ch.ID, "reason", reason, "user_channels", c.reg.Len(ch.UserID))
	}
}
