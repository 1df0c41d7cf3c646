// Package v1 defines the calcsync realtime wire contract.
//
// It is shared between the server and clients so the wire format stays
// authoritative in one place. It has no dependencies outside the standard
// library.
package v1

import (
	"bytes"
	"encoding/json"
	"time"
)

// Message types (wire-stable).
const (
	// TypeConnection acknowledges a successful handshake (server -> new channel only).
	TypeConnection = "connection"
	// TypeDataUpdate announces a persisted mutation (server -> all channels of a user).
	TypeDataUpdate = "data_update"
	// TypePing is the only inbound control message (client -> server).
	TypePing = "ping"
	// TypePong answers a ping on the same channel (server -> client).
	TypePong = "pong"
)

// ConnectedMessage is the human-readable text of the connection ack.
const ConnectedMessage = "Connected to real-time updates"

// Resource categories.
const (
	CategorySingle = "single"
	CategoryPro    = "pro"
	CategoryBroker = "broker"
)

// Mutation actions.
const (
	ActionSave   = "save"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Connection is the handshake acknowledgement.
type Connection struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConnection builds the ack sent to a freshly opened channel.
func NewConnection(ts time.Time) Connection {
	return Connection{Type: TypeConnection, Message: ConnectedMessage, Timestamp: ts.UTC()}
}

// Pong is the reply to an inbound ping.
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPong builds a pong stamped at ts.
func NewPong(ts time.Time) Pong {
	return Pong{Type: TypePong, Timestamp: ts.UTC()}
}

// DataUpdate is the outbound mutation event.
//
// Calculator categories (single, pro) are keyed by "calculator"; every other
// category is keyed by "resource". Exactly one of the two is set.
type DataUpdate struct {
	Type       string          `json:"type"`
	Calculator string          `json:"calculator,omitempty"`
	Resource   string          `json:"resource,omitempty"`
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewDataUpdate builds a data_update for category, choosing the category key.
// A nil data payload is encoded as an empty object.
func NewDataUpdate(category, action string, data json.RawMessage, ts time.Time) DataUpdate {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	u := DataUpdate{
		Type:      TypeDataUpdate,
		Action:    action,
		Data:      data,
		Timestamp: ts.UTC(),
	}
	if IsCalculator(category) {
		u.Calculator = category
	} else {
		u.Resource = category
	}
	return u
}

// Category returns whichever category key is set.
func (u DataUpdate) Category() string {
	if u.Calculator != "" {
		return u.Calculator
	}
	return u.Resource
}

// IsCalculator reports whether category is announced under the "calculator" key.
func IsCalculator(category string) bool {
	return category == CategorySingle || category == CategoryPro
}

// Control is the inbound control message shape.
type Control struct {
	Type string `json:"type"`
}

// ParsePing reports whether raw is a well-formed ping control message.
// Anything else (bad JSON, non-object, other type) is not a ping.
func ParsePing(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var c Control
	if err := json.Unmarshal(raw, &c); err != nil {
		return false
	}
	return c.Type == TypePing
}
