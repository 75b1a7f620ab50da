package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/homegate/internal/infrastructure/config"
	"github.com/nerrad567/homegate/internal/infrastructure/logging"
	"github.com/nerrad567/homegate/internal/session"
)

// Client-to-server push events.
const (
	EventRequestCamera = "request-camera"
	EventCloseCamera   = "close-camera"
	EventPing          = "ping"
	EventPong          = "pong"
	EventError         = "error"

	// togglePrefix marks advisory toggle-* notices from the front-end.
	togglePrefix = "toggle-"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Errors returned by WSClient.Send.
var (
	errClientClosed = errors.New("push client closed")
	errClientSlow   = errors.New("push client send buffer full")
)

// PushMessage is one frame on the push channel, in either direction.
type PushMessage struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// inboundMessage is a client frame with its payload left undecoded.
type inboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub manages push connections and broadcasts events to all of them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	metrics Metrics
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one push connection. It satisfies session.Conn and
// camera.Viewer.
type WSClient struct {
	id        string
	identity  session.Identity
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new push hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetMetrics sets the recorder that tracks connected clients.
func (h *Hub) SetMetrics(m Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
	h.logger.Debug("push client connected", "user_id", client.identity.UserID, "clients", n)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.report(n)
	h.logger.Debug("push client disconnected", "user_id", client.identity.UserID, "clients", n)
}

// Broadcast sends an event to every connected client. Slow clients miss
// the frame rather than holding up the others.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := encodePush(event, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		//nolint:errcheck // Dropped frames are expected for slow or closing clients
		client.trySend(data)
	}
	if len(clients) > 0 {
		h.logger.Debug("broadcast sent", "event", event, "recipients", len(clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.report(0)
}

func (h *Hub) report(n int) {
	h.mu.RLock()
	m := h.metrics
	h.mu.RUnlock()
	if m != nil {
		m.SetPushClients(n)
	}
}

func encodePush(event string, payload any) ([]byte, error) {
	return json.Marshal(PushMessage{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func newWSClient(hub *Hub, conn *websocket.Conn, identity session.Identity) *WSClient {
	return &WSClient{
		id:       uuid.NewString(),
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		closing:  make(chan struct{}),
	}
}

// ID identifies this connection; it is also the camera viewer key.
func (c *WSClient) ID() string {
	return c.id
}

// Send queues one event for this client.
func (c *WSClient) Send(event string, payload any) error {
	data, err := encodePush(event, payload)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

// Close asks the write loop to flush what is queued, send a close frame and
// drop the connection. Safe to call more than once.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	return nil
}

// trySend queues data without blocking. A send on a channel the hub has
// already closed is absorbed and reported as errClientClosed.
func (c *WSClient) trySend(data []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = errClientClosed
		}
	}()

	select {
	case <-c.closing:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errClientSlow
	}
}

// handleWebSocket verifies the caller's token, upgrades the connection and
// registers it with the hub and the session manager.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeUnauthorized(w, authFailureMessage(err))
		return
	}
	identity := claims.Identity()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, identity)
	s.hub.Register(client)
	superseded := s.sessions.Accept(identity, client)
	if superseded > 0 {
		s.logger.Info("earlier sessions superseded",
			"user_id", identity.UserID,
			"closed", superseded,
		)
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg, s.handleClientMessage, s.clientGone)
}

// clientGone releases everything a disconnected client held.
func (s *Server) clientGone(c *WSClient) {
	if s.camera != nil {
		s.camera.RemoveViewer(c.id)
	}
	s.sessions.Disconnect(c.identity, c)
	s.hub.Unregister(c)
}

// handleClientMessage processes one frame from a push client.
func (s *Server) handleClientMessage(c *WSClient, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
		//nolint:errcheck // Best-effort error reply
		c.Send(EventError, map[string]string{"message": "invalid message"})
		return
	}

	switch {
	case msg.Event == EventPing:
		//nolint:errcheck // Best-effort reply
		c.Send(EventPong, nil)
	case msg.Event == EventRequestCamera:
		if s.camera == nil {
			//nolint:errcheck // Best-effort error reply
			c.Send(EventError, map[string]string{"message": "camera relay disabled"})
			return
		}
		s.camera.RequestStream(c.id, c)
	case msg.Event == EventCloseCamera:
		if s.camera != nil {
			s.camera.RemoveViewer(c.id)
		}
	case strings.HasPrefix(msg.Event, togglePrefix):
		s.logger.Info("front-end toggle notice",
			"event", msg.Event,
			"user_id", c.identity.UserID,
			"payload", string(msg.Payload),
		)
	default:
		//nolint:errcheck // Best-effort error reply
		c.Send(EventError, map[string]string{"message": "unknown event: " + msg.Event})
	}
}

// readPump reads frames until the connection fails, then calls gone.
func (c *WSClient) readPump(cfg config.WebSocketConfig, onMessage func(*WSClient, []byte), gone func(*WSClient)) {
	defer func() {
		gone(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("push read error", "user_id", c.identity.UserID, "error", err)
			} else {
				c.hub.logger.Debug("push connection closed", "user_id", c.identity.UserID, "error", err)
			}
			return
		}
		// Any client frame resets the read deadline, for browsers that
		// ignore protocol-level pings.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		onMessage(c, message)
	}
}

// writePump writes queued frames and keepalive pings. After Close it
// flushes the queue, sends a close frame and returns.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.closing:
			c.flush(writeWait)
			//nolint:errcheck // Best-effort deadline
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is already queued.
func (c *WSClient) flush(writeWait time.Duration) {
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			//nolint:errcheck // Best-effort deadline
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
