package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the WebSocket connections and their grouping by
// session code for broadcast routing.
type ConnectionManager struct {
	mu           sync.RWMutex
	byID         map[string]*Connection
	bySession    map[string]map[*Connection]bool
	upgrader     websocket.Upgrader
	config       ConnectionConfig
	onMessage    func(c *Connection, msg ClientMessage)
	onDisconnect func(c *Connection)
}

// Connection is one WebSocket client.
type Connection struct {
	ID          string
	DeviceID    string
	SessionCode string
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager

	ConnectedAt time.Time

	// Set when the peer sent a clean close frame: a deliberate departure
	// rather than a transport drop.
	leftCleanly bool
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		byID:      make(map[string]*Connection),
		bySession: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// SetHandlers installs the message and disconnect callbacks. Must be called
// before serving.
func (cm *ConnectionManager) SetHandlers(onMessage func(*Connection, ClientMessage), onDisconnect func(*Connection)) {
	cm.onMessage = onMessage
	cm.onDisconnect = onDisconnect
}

// HandleWS upgrades an HTTP request and runs the connection's pumps.
func (cm *ConnectionManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.byID[c.ID] = c
	cm.mu.Unlock()

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.ID).Msg("WebSocket connection established")
}

// JoinSession groups a connection under a session code for broadcasts.
func (cm *ConnectionManager) JoinSession(c *Connection, code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if c.SessionCode != "" {
		if conns := cm.bySession[c.SessionCode]; conns != nil {
			delete(conns, c)
			if len(conns) == 0 {
				delete(cm.bySession, c.SessionCode)
			}
		}
	}
	c.SessionCode = code
	if cm.bySession[code] == nil {
		cm.bySession[code] = make(map[*Connection]bool)
	}
	cm.bySession[code][c] = true
}

// LeaveSession removes a connection from its broadcast group without closing
// the socket.
func (cm *ConnectionManager) LeaveSession(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if c.SessionCode == "" {
		return
	}
	if conns := cm.bySession[c.SessionCode]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(cm.bySession, c.SessionCode)
		}
	}
	c.SessionCode = ""
}

// Get returns a live connection by id.
func (cm *ConnectionManager) Get(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.byID[connID]
	return c, ok
}

// Broadcast sends payload to every connection grouped under code, skipping
// any connection id in exclude. Each connection's send buffer preserves
// order, so states rendered under the session lock arrive in sequence.
func (cm *ConnectionManager) Broadcast(code string, payload []byte, exclude map[string]struct{}) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.bySession[code]))
	for c := range cm.bySession[code] {
		if _, skip := exclude[c.ID]; skip {
			continue
		}
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}

	log.Debug().Str("session_code", code).Int("connections", len(targets)).Msg("state broadcast")
}

// SendTo delivers a payload to a single connection id.
func (cm *ConnectionManager) SendTo(connID string, payload []byte) {
	if c, ok := cm.Get(connID); ok {
		c.enqueue(payload)
	}
}

// CloseConnection force-disconnects a connection after flushing a final
// payload, if one is given.
func (cm *ConnectionManager) CloseConnection(connID string, final []byte) {
	c, ok := cm.Get(connID)
	if !ok {
		return
	}
	if final != nil {
		c.enqueue(final)
	}
	// Give the write pump a beat to flush, then drop the socket; the read
	// pump unwinds the rest.
	go func() {
		time.Sleep(100 * time.Millisecond)
		c.Conn.Close()
	}()
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.byID[c.ID]; !ok {
		return
	}
	delete(cm.byID, c.ID)
	if c.SessionCode != "" {
		if conns := cm.bySession[c.SessionCode]; conns != nil {
			delete(conns, c)
			if len(conns) == 0 {
				delete(cm.bySession, c.SessionCode)
			}
		}
	}
	close(c.Send)
	log.Info().Str("connection_id", c.ID).Msg("connection unregistered")
}

func (c *Connection) enqueue(payload []byte) {
	defer func() {
		// Send can race a concurrent unregister closing the channel; a
		// message lost to a dying connection is fine.
		_ = recover()
	}()
	select {
	case c.Send <- payload:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, closing connection")
		c.Conn.Close()
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
		if c.Manager.onDisconnect != nil {
			c.Manager.onDisconnect(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.leftCleanly = true
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.enqueue(encode(MsgRoomError, errorPayload{Message: fmt.Sprintf("malformed message: %v", err)}))
			continue
		}
		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, msg)
		}
	}
}

type errorPayload struct {
	Message string `json:"message"`
}
