package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage  MessageType = "client_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is one inbound user message on the websocket transport.
type ClientMessage struct {
	Type            MessageType `json:"type"`
	OwnerID         string      `json:"owner_id,omitempty"`
	Message         string      `json:"message"`
	ClientTimestamp string      `json:"client_timestamp,omitempty"`
}

// AssistantReply is the committed provider reply for one client message.
type AssistantReply struct {
	Type    MessageType `json:"type"`
	OwnerID string      `json:"owner_id"`
	Reply   string      `json:"reply"`
}

// ErrorEvent reports a failed exchange over the websocket transport.
type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes an inbound frame, rejecting unknown types.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Type != TypeClientMessage {
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("parse client message: %w", err)
	}
	return msg, nil
}
