package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size; a client that falls this far behind is dropped
	sendBufferSize = 256
)

// ErrClientClosed is returned by Send once the connection is gone
var ErrClientClosed = errors.New("client connection closed")

// Client is one relay connection session. UserID is the identity presented in
// the handshake.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	UserID string

	// Buffered channel of outbound frames; never closed
	send chan []byte

	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		UserID:      userID,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(config.MaxMessagesPerSecond), config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the client disconnects
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump reads frames and dispatches them in arrival order. It blocks until
// the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Client closed connection", logger.WithUserID(c.UserID))
			} else if c.ctx.Err() == nil {
				logger.Log.Warn("Read error for client", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.counters.Errors.Add(1)
			}
			return
		}

		allowed := c.limiter.Allow()

		var message protocol.Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Warn("Relay JSON parse error", logger.WithUserID(c.UserID), zap.Error(err))
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}

		// a dropped event is answered with its id so the sender can settle it
		if !allowed {
			c.ReplyError(&message, "rate_limited", "Too many messages, please slow down")
			c.hub.counters.Errors.Add(1)
			continue
		}

		c.hub.counters.MessagesReceived.Add(1)
		c.handleMessage(&message)
	}
}

// WritePump drains the send buffer onto the connection and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "closing")
			return

		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Warn("Write error for client", logger.WithUserID(c.UserID), zap.Error(err))
					c.hub.counters.Errors.Add(1)
				}
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Debug("Ping failed for client", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

// handleMessage routes an inbound message to its handler
func (c *Client) handleMessage(message *protocol.Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = protocol.FlexibleTime{Time: time.Now().UTC()}
	}

	if message.Type == protocol.MessageTypePing {
		c.handlePing(message)
		return
	}

	if handler, ok := c.hub.GetHandler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Warn("Handler error",
				logger.WithUserID(c.UserID),
				logger.WithEvent(message.Type),
				zap.Error(err))
			c.ReplyError(message, "handler_error", fmt.Sprintf("Failed to process %s", message.Type))
		}
		return
	}

	logger.Log.Warn("Unknown message type", logger.WithUserID(c.UserID), logger.WithEvent(message.Type))
	c.ReplyError(message, "unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *protocol.Message) {
	var ping protocol.PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	latency := int64(0)
	if ping.ClientTime > 0 {
		latency = serverTime - ping.ClientTime
	}

	// Best-effort; the connection may be closing
	_ = c.Send(protocol.NewReply(message, protocol.MessageTypePong, protocol.PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	}))
}

// Send queues a message for this client only
func (c *Client) Send(message *protocol.Message) error {
	if c.IsClosed() {
		return ErrClientClosed
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
		return fmt.Errorf("send buffer full")
	}
}

// SendError sends a generic protocol error to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(protocol.NewErrorMessage(code, message))
}

// ReplyError sends an error answering original (reply_to is its id)
func (c *Client) ReplyError(original *protocol.Message, code, message string) {
	_ = c.Send(protocol.NewReply(original, protocol.MessageTypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

// Close marks the client closed and stops both pumps. The write pump performs
// the close handshake, so Close never blocks on the network.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

// closeAfter closes the client once d has elapsed
func (c *Client) closeAfter(d time.Duration) {
	time.AfterFunc(d, c.Close)
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
