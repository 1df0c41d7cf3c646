package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "calcsync/contracts/realtime/v1"
)

// Event is an immutable mutation notice produced after a persisted write.
type Event struct {
	Category  string
	Action    string
	Payload   any
	Timestamp time.Time
}

// Encode renders the event as a data_update wire message.
func (e Event) Encode() ([]byte, error) {
	var data json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		data = b
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(v1.NewDataUpdate(e.Category, e.Action, data, ts))
}

// Delivery reports the outcome of one broadcast.
type Delivery struct {
	Attempted int
	Delivered int
	Failed    int
}

// Dispatcher delivers encoded events to the channels registered for a user.
//
// Delivery is a non-blocking enqueue on each channel's bounded queue, so a
// slow peer never stalls anyone else. A failed enqueue tears the channel
// down and removes it from the registry.
type Dispatcher struct {
	reg     *Registry
	log     *slog.Logger
	metrics *Metrics
}

func NewDispatcher(reg *Registry, log *slog.Logger, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{reg: reg, log: log, metrics: metrics}
}

// Broadcast encodes ev once and delivers it to every channel of userID.
// Errors never escape; an encode failure is logged and delivers nothing.
func (d *Dispatcher) Broadcast(userID string, ev Event) Delivery {
	msg, err := ev.Encode()
	if err != nil {
		d.log.Error("dispatch.encode.fail", "user_id", userID, "category", ev.Category, "action", ev.Action, "err", err)
		return Delivery{}
	}
	return d.BroadcastRaw(userID, msg)
}

// BroadcastRaw delivers an already encoded message to every channel of userID.
func (d *Dispatcher) BroadcastRaw(userID string, msg []byte) Delivery {
	targets := d.reg.Snapshot(userID)

	out := Delivery{Attempted: len(targets)}
	for _, ch := range targets {
		if err := d.SendDirect(ch, msg); err != nil {
			out.Failed++
			continue
		}
		out.Delivered++
	}

	d.metrics.broadcast(out.Delivered)
	if out.Failed > 0 {
		d.log.Info("dispatch.partial", "user_id", userID, "attempted", out.Attempted, "failed", out.Failed)
	}
	return out
}

// SendDirect enqueues msg on ch alone. On failure the channel is dropped
// and the send error is returned.
func (d *Dispatcher) SendDirect(ch *Channel, msg []byte) error {
	if err := ch.Enqueue(msg); err != nil {
		d.drop(ch, err)
		return err
	}
	return nil
}

func (d *Dispatcher) drop(ch *Channel, cause error) {
	reason := "closed"
	if errors.Is(cause, ErrSendQueueFull) {
		reason = "queue_full"
	}
	d.metrics.sendFailure(reason)

	if closeChannel(d.reg, ch) {
		d.log.Info("dispatch.drop", "user_id", ch.UserID, "channel_id", ch.ID, "reason", reason)
	}
}

// closeChannel runs the Closing → Closed transition: done is signalled,
// the channel leaves the registry, then it is marked Closed. Unregister
// always runs so a channel registered concurrently with teardown still
// leaves. It reports whether this call started the teardown.
func closeChannel(reg *Registry, ch *Channel) bool {
	started := ch.beginClose()
	reg.Unregister(ch.UserID, ch)
	ch.finishClose()
	return started
}
