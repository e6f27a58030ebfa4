package server

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zot/supplies/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connection serializes writes to one socket.
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketEndpoint handles WebSocket connections.
type WebSocketEndpoint struct {
	ledger      Ledger
	handler     *protocol.Handler
	log         *zap.Logger
	connections map[string]*connection
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewWebSocketEndpoint creates a new WebSocket endpoint.
func NewWebSocketEndpoint(ledger Ledger, handler *protocol.Handler, log *zap.Logger) *WebSocketEndpoint {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketEndpoint{
		ledger:      ledger,
		handler:     handler,
		log:         log.Named("ws"),
		connections: make(map[string]*connection),
	}
}

// HandleWebSocket upgrades the request, sends the current state and starts
// reading client messages.
func (ws *WebSocketEndpoint) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	connectionID := generateConnectionID()
	c := &connection{conn: conn}

	ws.mu.Lock()
	ws.connections[connectionID] = c
	ws.mu.Unlock()

	ws.log.Info("connected", zap.String("conn", connectionID), zap.String("remote", r.RemoteAddr))

	if snap, err := ws.ledger.Snapshot(); err == nil {
		if msg, err := protocol.NewMessage(protocol.MsgState, snap); err == nil {
			ws.Send(connectionID, msg)
		}
	}

	ws.wg.Add(1)
	go ws.readPump(connectionID, c)
}

// readPump reads messages from a WebSocket connection.
func (ws *WebSocketEndpoint) readPump(connectionID string, c *connection) {
	defer ws.wg.Done()
	defer func() {
		ws.onDisconnect(connectionID)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				ws.log.Warn("read failed", zap.String("conn", connectionID), zap.Error(err))
			}
			return
		}
		ws.processMessage(connectionID, message)
	}
}

// processMessage handles a single message or a batched array.
func (ws *WebSocketEndpoint) processMessage(connectionID string, message []byte) {
	msgs, err := protocol.ParseMessages(message)
	if err != nil {
		ws.log.Debug("unparseable message", zap.String("conn", connectionID), zap.Error(err))
		ws.Send(connectionID, protocol.ErrorReply(protocol.BadMessage(err)))
		return
	}

	for _, msg := range msgs {
		if reply := ws.handler.HandleMessage(connectionID, msg); reply != nil {
			ws.Send(connectionID, reply)
		}
	}
}

// onDisconnect handles connection close.
func (ws *WebSocketEndpoint) onDisconnect(connectionID string) {
	ws.mu.Lock()
	delete(ws.connections, connectionID)
	ws.mu.Unlock()

	ws.log.Info("disconnected", zap.String("conn", connectionID))
}

// Send sends a message to a specific connection.
func (ws *WebSocketEndpoint) Send(connectionID string, msg *protocol.Message) {
	ws.mu.RLock()
	c, ok := ws.connections[connectionID]
	ws.mu.RUnlock()
	if !ok {
		return
	}

	data, err := msg.Encode()
	if err != nil {
		ws.log.Error("encode failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	ws.log.Debug("send", zap.String("type", string(msg.Type)), zap.String("to", connectionID))
	if err := c.write(data); err != nil {
		ws.log.Debug("write failed", zap.String("conn", connectionID), zap.Error(err))
	}
}

// Broadcast sends a message to every connection.
func (ws *WebSocketEndpoint) Broadcast(msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		ws.log.Error("encode failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	ws.mu.RLock()
	conns := make(map[string]*connection, len(ws.connections))
	for id, c := range ws.connections {
		conns[id] = c
	}
	ws.mu.RUnlock()

	ws.log.Debug("broadcast", zap.String("type", string(msg.Type)), zap.Int("connections", len(conns)))
	for id, c := range conns {
		if err := c.write(data); err != nil {
			ws.log.Debug("write failed", zap.String("conn", id), zap.Error(err))
		}
	}
}

// ConnectionCount returns the number of open connections.
func (ws *WebSocketEndpoint) ConnectionCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.connections)
}

// Close closes every connection and waits for the read loops to exit.
func (ws *WebSocketEndpoint) Close() {
	ws.mu.RLock()
	for _, c := range ws.connections {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
		c.writeMu.Unlock()
		c.conn.Close()
	}
	ws.mu.RUnlock()
	ws.wg.Wait()
}

func generateConnectionID() string {
	return "conn-" + uuid.NewString()
}
