// Package websocket runs the realtime relay transport on github.com/coder/websocket.
// A Hub tracks connected clients, routes inbound events to registered handlers
// and fans broadcasts out to every client.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/metrics"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// Broadcaster fans a message out to every connected client
type Broadcaster interface {
	Publish(message *protocol.Message)
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(client *Client, message *protocol.Message) error

// RateLimitConfig defines per-client inbound rate limiting
type RateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstSize            int
}

// DefaultRateLimitConfig returns the relay defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]struct{}

	// All clients for broadcasting
	allClients map[*Client]struct{}

	unregister chan *Client
	broadcast  chan *protocol.Message

	mu sync.RWMutex

	counters *Counters

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	handlers map[string]MessageHandler

	rateLimitConfig RateLimitConfig
}

// Counters tracks hub statistics exposed on the ws metrics endpoint
type Counters struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		unregister:      make(chan *Client, 256),
		broadcast:       make(chan *protocol.Message, 256),
		counters:        &Counters{},
		ctx:             ctx,
		cancel:          cancel,
		stopped:         make(chan struct{}),
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
	logger.Log.Debug("Registered relay handler", logger.WithEvent(msgType))
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Run starts the hub's main event loop and blocks until Shutdown
func (h *Hub) Run() {
	logger.Log.Info("Relay hub starting")
	defer close(h.stopped)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Register adds a client to the hub. Registration is synchronous so that a
// client sees every broadcast published after Register returns.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return fmt.Errorf("hub is shutting down")
	}

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	h.allClients[client] = struct{}{}

	h.counters.TotalConnections.Add(1)
	h.counters.ActiveConnections.Add(1)
	metrics.Get().WSConnectionsTotal.Inc()
	metrics.Get().WSConnectionsActive.Inc()

	logger.Log.Info("Client connected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.counters.ActiveConnections.Load()),
	)
	return nil
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// removeClient must be called with h.mu held
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)

	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
		}
	}

	client.Close()

	h.counters.ActiveConnections.Add(-1)
	metrics.Get().WSConnectionsActive.Dec()

	logger.Log.Info("Client disconnected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.counters.ActiveConnections.Load()),
	)
}

// broadcastMessage sends a message to all connected clients. A client whose
// send buffer is full is dropped.
func (h *Hub) broadcastMessage(message *protocol.Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.ErrorWithFields("Error marshaling broadcast message", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.allClients {
		select {
		case client.send <- data:
			h.counters.MessagesSent.Add(1)
		default:
			h.counters.ConnectionsDropped.Add(1)
			metrics.Get().WSDroppedTotal.Inc()
			logger.Log.Warn("Send buffer full, dropping client", logger.WithUserID(client.UserID))
			h.removeClient(client)
		}
	}
	metrics.Get().BroadcastsTotal.WithLabelValues(message.Type).Inc()
}

// Publish enqueues message for delivery to every connected client
func (h *Hub) Publish(message *protocol.Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.clients[userID]
	return ok && len(clients) > 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// GetOnlineUsers returns all user IDs with at least one connection
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// GetMetrics returns current hub counters
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.counters.TotalConnections.Load(),
		ActiveConnections:  h.counters.ActiveConnections.Load(),
		MessagesReceived:   h.counters.MessagesReceived.Load(),
		MessagesSent:       h.counters.MessagesSent.Load(),
		Errors:             h.counters.Errors.Load(),
		ConnectionsDropped: h.counters.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of hub counters
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown stops the hub loop and closes every client
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating relay hub shutdown")
	h.cancel()

	select {
	case <-h.stopped:
		logger.Log.Info("Relay hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// shutdown notifies and closes all clients
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, _ := json.Marshal(protocol.NewMessage(protocol.MessageTypeSystem, protocol.SystemPayload{
		Event: "server_shutdown",
	}))

	closed := len(h.allClients)
	for client := range h.allClients {
		select {
		case client.send <- data:
		default:
		}
		// give the write pump a moment to flush the notice
		client.closeAfter(100 * time.Millisecond)
	}

	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
	h.counters.ActiveConnections.Store(0)
	metrics.Get().WSConnectionsActive.Set(0)

	logger.Log.Info("Closed relay connections during shutdown", zap.Int("count", closed))
}

// SetRateLimitConfig updates the rate limiting configuration for new clients
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
