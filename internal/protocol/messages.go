package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/surveypulse/internal/aggregate"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeResultsSnapshot MessageType = "results_snapshot"
	TypeResultsUpdate   MessageType = "results_update"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionPing  = "ping"
	ActionClose = "close"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// Results carries a full session aggregate. Seq increases by one per message
// on a connection, starting at 0 for the snapshot.
type Results struct {
	Type      MessageType                `json:"type"`
	SessionID string                     `json:"session_id"`
	Mode      string                     `json:"mode"`
	Seq       int                        `json:"seq"`
	Results   aggregate.SessionAggregate `json:"results"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewResults(typ MessageType, mode string, seq int, agg aggregate.SessionAggregate) Results {
	return Results{Type: typ, SessionID: agg.SessionID, Mode: mode, Seq: seq, Results: agg}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionPing, ActionClose:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, env.Type)
	}
}
