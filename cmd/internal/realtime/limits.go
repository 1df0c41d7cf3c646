package realtime

import "time"

const (
	// Max bytes per inbound websocket message. Clients only send control messages.
	maxFrameBytes = 16 << 10 // 16 KiB

	// Outbound queue bounds per channel.
	defaultSendQueueSize = 64
	minSendQueueSize     = 8
)

const (
	writeTimeout      = 5 * time.Second
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	closeGrace        = 1 * time.Second
	maxPingFailures   = 3
)
