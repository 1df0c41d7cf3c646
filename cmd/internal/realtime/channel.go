package realtime

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is one duplex session bound to one user for its lifetime.
//
// The outbound queue is bounded and never closed, so concurrent enqueuers
// cannot panic. done is closed exactly once when the channel starts tearing
// down; goroutines serving the channel select on it.
type Channel struct {
	ID     string
	UserID string

	send chan []byte

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel constructs a Connecting channel with a bounded outbound queue.
func NewChannel(id, userID string, queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &Channel{
		ID:     id,
		UserID: userID,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue appends msg to the outbound queue without blocking.
func (c *Channel) Enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Outbound is the queue drained by the channel's single writer, which
// preserves per-channel FIFO order.
func (c *Channel) Outbound() <-chan []byte { return c.send }

// Done is closed when the channel starts tearing down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Pending reports the number of queued outbound messages.
func (c *Channel) Pending() int { return len(c.send) }

func (c *Channel) open() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// beginClose moves Connecting/Open to Closing and signals done. It reports
// whether this call performed the transition.
func (c *Channel) beginClose() bool {
	for {
		cur := c.state.Load()
		if cur >= int32(StateClosing) {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateClosing)) {
			c.closeOnce.Do(func() { close(c.done) })
			return true
		}
	}
}

func (c *Channel) finishClose() {
	c.state.Store(int32(StateClosed))
}
