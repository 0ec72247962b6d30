package protocol

import (
	"encoding/json"
	"fmt"
)

// validServerTypes is the set of allowed server→client message types.
var validServerTypes = map[string]bool{
	TypeToolOutput: true,
	TypeError:      true,
}

// ValidateServerMessage validates a raw JSON frame received from the realtime channel.
// Returns the parsed Message and any validation error.
func ValidateServerMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validServerTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	switch msg.Type {
	case TypeToolOutput:
		var p ToolOutputPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'session_id' in %s payload", msg.Type)
		}

	case TypeError:
		var p ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
	}

	return &msg, nil
}

// ToolOutputEvent converts a validated tool_output message into a RealtimeEvent.
func ToolOutputEvent(msg *Message) (RealtimeEvent, error) {
	if msg.Type != TypeToolOutput {
		return RealtimeEvent{}, fmt.Errorf("not a %s message: %s", TypeToolOutput, msg.Type)
	}
	var p ToolOutputPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return RealtimeEvent{}, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return RealtimeEvent{
		Kind:      EventToolOutput,
		SessionID: p.SessionID,
		Output:    p.Output,
	}, nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// NewToolOutputMessage creates a tool_output frame for a session.
func NewToolOutputMessage(sessionID, output string) (*Message, error) {
	return NewMessage(TypeToolOutput, ToolOutputPayload{
		SessionID: sessionID,
		Output:    output,
	})
}
