// Package protocol defines the messages exchanged over the WebSocket feed.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/supply"
)

// MessageType identifies the type of protocol message.
type MessageType string

const (
	// Client actions
	MsgAdd    MessageType = "add"
	MsgUpdate MessageType = "update"
	MsgDelete MessageType = "delete"
	MsgEdit   MessageType = "edit"
	MsgCancel MessageType = "cancel"
	MsgState  MessageType = "state" // also pushed by the server

	// Server replies
	MsgAdded MessageType = "added"
	MsgOK    MessageType = "ok" // only sent when the request carried a ref
	MsgError MessageType = "error"
)

// Message is the base protocol message structure.
// A client may set Ref on a request; the reply echoes it.
type Message struct {
	Type MessageType     `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AddMessage carries the fields of a new record.
type AddMessage = supply.Fields

// UpdateMessage carries a whole record, id included.
type UpdateMessage = supply.Record

// IDMessage names a record for delete and edit.
type IDMessage struct {
	ID string `json:"id"`
}

// StateMessage is the snapshot pushed to every connection after a change.
type StateMessage = controller.Snapshot

// ErrorMessage reports a failed action to the sender.
type ErrorMessage struct {
	Code        string `json:"code"`        // One-word error code (e.g., "invalid", "not-found", "bad-message")
	Description string `json:"description"` // Human-readable error description
}

// ParseMessage parses a raw JSON message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseMessages parses raw JSON that may be a single message or a batched array.
func ParseMessages(data []byte) ([]*Message, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, err
		}
		result := make([]*Message, len(msgs))
		for i := range msgs {
			result[i] = &msgs[i]
		}
		return result, nil

	case '{':
		msg, err := ParseMessage(data)
		if err != nil {
			return nil, err
		}
		return []*Message{msg}, nil

	default:
		return nil, fmt.Errorf("message must be a JSON object or array")
	}
}

// NewMessage creates a new message with the given type and data.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type: msgType,
		Data: raw,
	}, nil
}

// Encode serializes a message to JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
