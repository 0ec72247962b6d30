package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all realtime (WebSocket) frames.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client realtime message types.
const (
	TypeToolOutput = "tool_output"
	TypeError      = "error"
)

// Error codes carried by TypeError frames.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrReceiveOnly    = "RECEIVE_ONLY"
)

// ToolOutputPayload carries background output of a session.
type ToolOutputPayload struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// EventKind distinguishes the events the realtime channel delivers to the client.
type EventKind string

const (
	EventConnected    EventKind = "connect"
	EventDisconnected EventKind = "disconnect"
	EventToolOutput   EventKind = "tool_output"
)

// RealtimeEvent is one event delivered out-of-band by the realtime channel.
// SessionID and Output are only set for EventToolOutput.
type RealtimeEvent struct {
	Kind      EventKind
	SessionID string
	Output    string
}
