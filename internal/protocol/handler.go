package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/rules"
	"github.com/zot/supplies/internal/supply"
)

// Ledger is the set of record operations a surface can invoke.
// *controller.Service implements it.
type Ledger interface {
	Add(supply.Fields) (supply.Record, error)
	Update(supply.Record) error
	Delete(id string) error
	BeginEdit(id string) (supply.Record, error)
	CancelEdit() error
	Snapshot() (controller.Snapshot, error)
}

// Handler turns client messages into ledger operations.
type Handler struct {
	ledger Ledger
	log    *zap.Logger
}

// NewHandler creates a new protocol handler.
func NewHandler(ledger Ledger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{ledger: ledger, log: log.Named("protocol")}
}

// HandleMessage applies msg and returns the reply for the sender, if any.
// Failures are returned as error messages rather than Go errors. Requests
// with a ref always get a reply.
func (h *Handler) HandleMessage(connectionID string, msg *Message) *Message {
	h.log.Debug("message", zap.String("type", string(msg.Type)), zap.String("from", connectionID))

	reply, err := h.dispatch(msg)
	if err != nil {
		h.log.Debug("message failed", zap.String("type", string(msg.Type)), zap.Error(err))
		reply = ErrorReply(err)
	}
	if msg.Ref != "" {
		if reply == nil {
			reply = &Message{Type: MsgOK}
		}
		reply.Ref = msg.Ref
	}
	return reply
}

func (h *Handler) dispatch(msg *Message) (*Message, error) {
	switch msg.Type {
	case MsgAdd:
		var fields AddMessage
		if err := decode(msg.Data, &fields); err != nil {
			return nil, err
		}
		r, err := h.ledger.Add(fields)
		if err != nil {
			return nil, err
		}
		return NewMessage(MsgAdded, r)

	case MsgUpdate:
		var r UpdateMessage
		if err := decode(msg.Data, &r); err != nil {
			return nil, err
		}
		return nil, h.ledger.Update(r)

	case MsgDelete:
		var m IDMessage
		if err := decode(msg.Data, &m); err != nil {
			return nil, err
		}
		return nil, h.ledger.Delete(m.ID)

	case MsgEdit:
		var m IDMessage
		if err := decode(msg.Data, &m); err != nil {
			return nil, err
		}
		_, err := h.ledger.BeginEdit(m.ID)
		return nil, err

	case MsgCancel:
		return nil, h.ledger.CancelEdit()

	case MsgState:
		s, err := h.ledger.Snapshot()
		if err != nil {
			return nil, err
		}
		return NewMessage(MsgState, s)

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", errBadMessage, msg.Type)
	}
}

var errBadMessage = errors.New("bad message")

// BadMessage marks err as a malformed client message.
func BadMessage(err error) error {
	return fmt.Errorf("%w: %v", errBadMessage, err)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errBadMessage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return BadMessage(err)
	}
	return nil
}

// ErrorCode maps an error to the one-word code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, supply.ErrInvalidRecord), errors.Is(err, rules.ErrRejected):
		return "invalid"
	case errors.Is(err, controller.ErrNotFound):
		return "not-found"
	case errors.Is(err, errBadMessage):
		return "bad-message"
	default:
		return "internal"
	}
}

// ErrorReply builds an error message for err.
func ErrorReply(err error) *Message {
	msg, mErr := NewMessage(MsgError, ErrorMessage{Code: ErrorCode(err), Description: err.Error()})
	if mErr != nil {
		return &Message{Type: MsgError}
	}
	return msg
}
