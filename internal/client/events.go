package client

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateConnecting is the state between Open and the end of the handshake.
	StateConnecting State = iota
	// StateOpen means frames can be sent and received.
	StateOpen
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventKind identifies the type of a session event.
type EventKind int

const (
	// EventOpened is emitted once when the handshake completes.
	EventOpened EventKind = iota
	// EventFrame carries one inbound JSON object.
	EventFrame
	// EventMalformed reports an inbound frame that was not a JSON object.
	// The frame is not delivered to handlers.
	EventMalformed
	// EventFailed reports the transport error that ended the session.
	EventFailed
	// EventClosed is the last event of every session.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventFrame:
		return "frame"
	case EventMalformed:
		return "malformed"
	case EventFailed:
		return "failed"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one item of a session's inbound stream.
type Event struct {
	Kind EventKind
	// Frame is set for EventFrame.
	Frame Frame
	// Raw is the undecodable payload for EventMalformed.
	Raw []byte
	// Reason is set for EventClosed.
	Reason string
	// Err is set for EventFailed and EventMalformed.
	Err error
}

// Frame is an inbound JSON object.
type Frame struct {
	Raw    json.RawMessage
	Fields map[string]any
}

// parseFrame decodes data as a JSON object.
func parseFrame(data []byte) (Frame, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, err
	}
	if fields == nil {
		return Frame{}, fmt.Errorf("frame is not a JSON object")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Frame{Raw: raw, Fields: fields}, nil
}

// Decode unmarshals the frame into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Raw, v)
}

// StringField returns the string field key, or "" if it is missing or not a string.
func (f Frame) StringField(key string) string {
	s, _ := f.Fields[key].(string)
	return s
}

// outboundFrame is the wire shape of Session.Send.
// Field order is part of the contract.
type outboundFrame struct {
	Message        string `json:"message"`
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}
