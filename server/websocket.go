package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/protocol"
)

// Client is one WebSocket connection. It owns at most one editor screen.
type Client struct {
	ID     string
	conn   *websocket.Conn
	logger *logrus.Entry

	writeMu sync.Mutex

	mu     sync.Mutex
	screen *Screen
}

func newClient(conn *websocket.Conn, logger *logrus.Entry) *Client {
	id := uuid.New().String()
	return &Client{
		ID:     id,
		conn:   conn,
		logger: logger.WithField("client", id[:8]),
	}
}

// Send writes message as JSON. Writes are serialised per connection.
func (c *Client) Send(message any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(message)
}

// Respond sends a successful response to req.
func (c *Client) Respond(req protocol.WebSocketRequest, payload any) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	})
}

// RespondError sends a structured error response.
func (c *Client) RespondError(requestID, requestType, code, message string) error {
	if requestType == "" {
		requestType = protocol.WSTypeError
	}
	return c.Send(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    requestType,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code},
	})
}

// Screen returns the open editor screen, or nil.
func (c *Client) Screen() *Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// swapScreen replaces the open screen and returns the previous one.
func (c *Client) swapScreen(s *Screen) *Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.screen
	c.screen = s
	return prev
}

// closeScreen closes the open screen, if any.
func (c *Client) closeScreen() {
	if prev := c.swapScreen(nil); prev != nil {
		prev.Close()
	}
}

// releaseScreen closes s and detaches it if it is still the open screen.
func (c *Client) releaseScreen(s *Screen) {
	c.mu.Lock()
	if c.screen == s {
		c.screen = nil
	}
	c.mu.Unlock()
	s.Close()
}

// WebsocketClientManager manages WebSocket client connections and broadcasting.
type WebsocketClientManager struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *logrus.Entry
}

// NewClientManager creates a new ClientManager instance.
func NewClientManager(logger *logrus.Entry) *WebsocketClientManager {
	return &WebsocketClientManager{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// Register adds a new client connection.
func (cm *WebsocketClientManager) Register(client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[client] = true
}

// Unregister removes a client connection.
func (cm *WebsocketClientManager) Unregister(client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, client)
}

// Count returns the number of connected clients.
func (cm *WebsocketClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CloseAll closes all client connections. Their read loops unregister them.
func (cm *WebsocketClientManager) CloseAll() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for client := range cm.clients {
		client.conn.Close()
	}
}

// Broadcast sends message to all connected clients. A client that cannot be
// written to is disconnected.
func (cm *WebsocketClientManager) Broadcast(message protocol.WebSocketMessage) {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for client := range cm.clients {
		clients = append(clients, client)
	}
	cm.mu.RUnlock()

	for _, client := range clients {
		if err := client.Send(message); err != nil {
			cm.logger.WithError(err).WithField("client", client.ID[:8]).Warn("websocket write error")
			client.conn.Close()
		}
	}
}
