package realtime

import "errors"

var (
	// ErrUnauthenticated rejects a handshake whose credential did not verify.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")

	// ErrChannelClosed is a send failure on a channel that is closing or closed.
	ErrChannelClosed = errors.New("realtime: channel closed")

	// ErrSendQueueFull is a send failure on a channel whose outbound queue is full.
	ErrSendQueueFull = errors.New("realtime: send queue full")
)
