// Package suppliesclient provides a client library for the supplies
// WebSocket feed.
package suppliesclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/protocol"
	"github.com/zot/supplies/internal/supply"
)

type (
	Record = supply.Record
	Fields = supply.Fields
	State  = controller.Snapshot
)

// ErrNotConnected is returned by requests on a closed connection.
var ErrNotConnected = errors.New("not connected")

// Error is a failure reported by the server.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// IsNotFound reports whether err is the server rejecting an unknown id.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == "not-found"
}

// Connection represents a connection to the supplies server.
type Connection struct {
	conn      *websocket.Conn
	connected bool
	state     State
	haveState bool
	pending   map[string]chan *protocol.Message
	onState   func(State)
	onClose   func()
	done      chan struct{}
	mu        sync.RWMutex
	writeMu   sync.Mutex
}

// NewConnection creates a new, unconnected client.
func NewConnection() *Connection {
	return &Connection{
		pending: make(map[string]chan *protocol.Message),
	}
}

// Connect dials the server's WebSocket endpoint, e.g. ws://127.0.0.1:8080/ws.
func (c *Connection) Connect(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection.
func (c *Connection) Disconnect() error {
	c.mu.RLock()
	conn, connected, done := c.conn, c.connected, c.done
	c.mu.RUnlock()
	if !connected {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

// IsConnected returns the connection state.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// OnClose registers a callback for connection close.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// OnState registers a callback for every state pushed by the server. It
// runs on the read loop and must not issue requests.
func (c *Connection) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// LastState returns the most recent state pushed by the server.
func (c *Connection) LastState() (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.haveState
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	defer c.closed()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msgs, err := protocol.ParseMessages(data)
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			c.dispatch(msg)
		}
	}
}

func (c *Connection) dispatch(msg *protocol.Message) {
	if msg.Ref != "" {
		c.mu.Lock()
		ch, ok := c.pending[msg.Ref]
		delete(c.pending, msg.Ref)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
		return
	}
	if msg.Type != protocol.MsgState {
		return
	}

	var state State
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		return
	}
	c.mu.Lock()
	c.state, c.haveState = state, true
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Connection) closed() {
	c.mu.Lock()
	c.connected = false
	for ref, ch := range c.pending {
		close(ch)
		delete(c.pending, ref)
	}
	fn := c.onClose
	done := c.done
	c.mu.Unlock()

	close(done)
	if fn != nil {
		fn()
	}
}

// request sends one message and waits for the reply carrying its ref.
func (c *Connection) request(ctx context.Context, typ protocol.MessageType, data any) (*protocol.Message, error) {
	msg, err := protocol.NewMessage(typ, data)
	if err != nil {
		return nil, err
	}
	msg.Ref = uuid.NewString()
	ch := make(chan *protocol.Message, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[msg.Ref] = ch
	conn := c.conn
	c.mu.Unlock()

	encoded, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, encoded)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(msg.Ref)
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if reply.Type == protocol.MsgError {
			var em protocol.ErrorMessage
			if err := json.Unmarshal(reply.Data, &em); err != nil {
				return nil, err
			}
			return nil, &Error{Code: em.Code, Description: em.Description}
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(msg.Ref)
		return nil, ctx.Err()
	}
}

func (c *Connection) forget(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, ref)
}

// Add creates a record and returns it with its server-assigned id.
func (c *Connection) Add(ctx context.Context, fields Fields) (Record, error) {
	reply, err := c.request(ctx, protocol.MsgAdd, fields)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(reply.Data, &r); err != nil {
		return Record{}, fmt.Errorf("unexpected response format: %w", err)
	}
	return r, nil
}

// Update replaces the record with the same id.
func (c *Connection) Update(ctx context.Context, r Record) error {
	_, err := c.request(ctx, protocol.MsgUpdate, r)
	return err
}

// Delete removes a record.
func (c *Connection) Delete(ctx context.Context, id string) error {
	_, err := c.request(ctx, protocol.MsgDelete, protocol.IDMessage{ID: id})
	return err
}

// BeginEdit marks a record as being edited.
func (c *Connection) BeginEdit(ctx context.Context, id string) error {
	_, err := c.request(ctx, protocol.MsgEdit, protocol.IDMessage{ID: id})
	return err
}

// CancelEdit abandons the edit in progress.
func (c *Connection) CancelEdit(ctx context.Context) error {
	_, err := c.request(ctx, protocol.MsgCancel, nil)
	return err
}

// State fetches the current state.
func (c *Connection) State(ctx context.Context) (State, error) {
	reply, err := c.request(ctx, protocol.MsgState, nil)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(reply.Data, &state); err != nil {
		return State{}, fmt.Errorf("unexpected response format: %w", err)
	}
	return state, nil
}
