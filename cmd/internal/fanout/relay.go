package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"calcsync/cmd/internal/realtime"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "calcsync:events:"

type envelope struct {
	Origin  string          `json:"origin"`
	UserID  string          `json:"user_id"`
	Message json.RawMessage `json:"message"`
}

// RedisRelay publishes events to peer instances over Redis pub/sub.
//
// Publish delivers locally first, then publishes. Run subscribes to every
// user channel and delivers envelopes from other origins, so each channel
// receives an event exactly once whichever instance handled the write.
type RedisRelay struct {
	rdb    redis.UniversalClient
	disp   *realtime.Dispatcher
	log    *slog.Logger
	origin string

	relayed *prometheus.CounterVec
}

// NewRedisRelay builds a relay with a fresh origin id. reg may be nil.
func NewRedisRelay(rdb redis.UniversalClient, disp *realtime.Dispatcher, log *slog.Logger, reg prometheus.Registerer) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	r := &RedisRelay{
		rdb:    rdb,
		disp:   disp,
		log:    log,
		origin: uuid.NewString(),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calcsync",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Relay messages by direction and outcome.",
		}, []string{"direction", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.relayed)
	}
	return r
}

// Origin is this instance's relay id.
func (r *RedisRelay) Origin() string { return r.origin }

func (r *RedisRelay) Publish(ctx context.Context, userID string, ev realtime.Event) error {
	msg, err := ev.Encode()
	if err != nil {
		return err
	}
	r.disp.BroadcastRaw(userID, msg)

	b, err := json.Marshal(envelope{Origin: r.origin, UserID: userID, Message: msg})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, channelPrefix+userID, b).Err(); err != nil {
		r.relayed.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("relay publish: %w", err)
	}
	r.relayed.WithLabelValues("out", "ok").Inc()
	return nil
}

// Run subscribes and delivers until ctx is done. It returns nil on
// cancellation and an error when the subscription cannot be established.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	// Wait for the subscription confirmation so callers know the relay is live.
	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.log.Info("relay.subscribed", "origin", r.origin, "pattern", channelPrefix+"*")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			r.deliver(m.Channel, m.Payload)
		}
	}
}

func (r *RedisRelay) deliver(channel, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.relayed.WithLabelValues("in", "malformed").Inc()
		r.log.Warn("relay.decode.fail", "channel", channel, "err", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	if env.UserID == "" || strings.TrimPrefix(channel, channelPrefix) != env.UserID || len(env.Message) == 0 {
		r.relayed.WithLabelValues("in", "malformed").Inc()
		r.log.Warn("relay.envelope.invalid", "channel", channel, "origin", env.Origin)
		return
	}

	r.relayed.WithLabelValues("in", "ok").Inc()
	r.disp.BroadcastRaw(env.UserID, env.Message)
}
