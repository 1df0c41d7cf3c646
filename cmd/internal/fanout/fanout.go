// Package fanout routes mutation events to the dispatcher, either directly
// (single instance) or through a Redis pub/sub relay so that every instance
// behind a load balancer reaches its own channels.
package fanout

import (
	"context"

	"calcsync/cmd/internal/realtime"
)

// Publisher announces an event to every live channel of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev realtime.Event) error
}

// Local delivers on this process's dispatcher only.
type Local struct {
	disp *realtime.Dispatcher
}

func NewLocal(disp *realtime.Dispatcher) *Local {
	return &Local{disp: disp}
}

func (l *Local) Publish(_ context.Context, userID string, ev realtime.Event) error {
	msg, err := ev.Encode()
	if err != nil {
		return err
	}
	l.disp.BroadcastRaw(userID, msg)
	return nil
}

var (
	_ Publisher = (*Local)(nil)
	_ Publisher = (*RedisRelay)(nil)
)
