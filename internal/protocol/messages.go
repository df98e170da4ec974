package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/roundtable/internal/transcript"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl     MessageType = "client_control"
	TypeTurnAppended      MessageType = "turn_appended"
	TypeRoundStarted      MessageType = "round_started"
	TypeRoundCompleted    MessageType = "round_completed"
	TypeRoundFailed       MessageType = "round_failed"
	TypeTranscriptCleared MessageType = "transcript_cleared"
	TypeSessionState      MessageType = "session_state"
	TypeErrorEvent        MessageType = "error_event"
)

// Client control actions.
const (
	ActionStart    = "start"
	ActionContinue = "continue"
	ActionClear    = "clear"
	ActionDecide   = "decide"
	ActionEnd      = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Topic     string      `json:"topic,omitempty"`
	Personas  []string    `json:"personas,omitempty"`
	// Continue is the moderator's answer for ActionDecide.
	Continue *bool `json:"continue,omitempty"`
}

type TurnAppended struct {
	Type      MessageType           `json:"type"`
	SessionID string                `json:"session_id"`
	Turn      transcript.TurnRecord `json:"turn"`
}

type RoundStarted struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Round       int         `json:"round"`
	Topic       string      `json:"topic"`
	Personas    []string    `json:"personas"`
	SourceCount int         `json:"source_count"`
}

type RoundCompleted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Round     int         `json:"round"`
	Turns     int         `json:"turns"`
}

type RoundFailed struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Round     int         `json:"round"`
	Persona   string      `json:"persona"`
	Kind      string      `json:"kind"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

type TranscriptCleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SessionState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	State     string      `json:"state"`
	Topic     string      `json:"topic,omitempty"`
	Rounds    int         `json:"rounds"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
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
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control: missing session_id")
		}
		switch msg.Action {
		case ActionStart, ActionContinue, ActionClear, ActionEnd:
		case ActionDecide:
			if msg.Continue == nil {
				return nil, errors.New("invalid client_control: decide requires continue")
			}
		default:
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
