// Package socket is the client side of the relay connection: a reconnecting
// WebSocket carrying protocol messages, and the Manager that keeps exactly one
// of them per process.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/whispers-app/whispers/pkg/config"
	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// Lifecycle events delivered through On alongside relay events
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

const writeWait = 10 * time.Second

var (
	// ErrNotConnected is returned by Emit while no connection is open
	ErrNotConnected = errors.New("socket: not connected")
	// ErrClosed is returned once Close has been called
	ErrClosed = errors.New("socket: closed")
	// ErrUnauthorized means the relay refused the handshake
	ErrUnauthorized = errors.New("socket: handshake rejected")
)

// State represents the state of the connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Options configures a Conn. Reconnection waits attempt*ReconnectDelay before
// each of ReconnectAttempts tries.
type Options struct {
	URL               string
	UserID            string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
}

// OptionsFromConfig builds Options from the relay.* settings
func OptionsFromConfig(r config.Relay) Options {
	return Options{
		URL:               r.URL,
		UserID:            r.UserID,
		ReconnectAttempts: r.ReconnectAttempts,
		ReconnectDelay:    r.ReconnectDelay,
		HandshakeTimeout:  15 * time.Second,
	}
}

// Listener receives one message. Listeners run on the read goroutine, in
// arrival order, and must not block.
type Listener func(msg *protocol.Message)

// Conn is a relay connection that survives drops by redialing
type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	mu           sync.Mutex
	ws           *websocket.Conn
	reconnecting bool
	closed       bool

	writeMu sync.Mutex
	state   atomic.Int32

	listenersMu sync.RWMutex
	listeners   map[string]map[uint64]Listener
	onReconnect map[uint64]func()
	nextID      uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// frame mirrors protocol.Message with the payload left undecoded
type frame struct {
	Type      string                `json:"type"`
	Payload   json.RawMessage       `json:"payload,omitempty"`
	ID        string                `json:"id,omitempty"`
	ReplyTo   string                `json:"reply_to,omitempty"`
	Timestamp protocol.FlexibleTime `json:"timestamp"`
}

// New creates a Conn. Nothing is dialed until Connect or Reconnect.
func New(opts Options) *Conn {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		listeners:   make(map[string]map[uint64]Listener),
		onReconnect: make(map[uint64]func()),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UserID returns the identity sent in the handshake
func (c *Conn) UserID() string {
	return c.opts.UserID
}

// State returns the current connection state
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsConnected returns true if the connection is established
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials once. A failure leaves the Conn disconnected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	ws, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		c.emitLocal(EventConnectError, err)
		return err
	}
	c.attach(ws, false)
	return nil
}

// Reconnect starts a background reconnection cycle unless the connection is
// open or a cycle is already running. It runs at least one attempt even when
// automatic reconnection is disabled.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting || c.ws != nil {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	c.setState(StateReconnecting)
	go c.reconnectLoop()
}

// On registers fn for an event name and returns a func that removes exactly
// that registration.
func (c *Conn) On(event string, fn Listener) func() {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	if c.listeners[event] == nil {
		c.listeners[event] = make(map[uint64]Listener)
	}
	c.listeners[event][id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners[event], id)
		if len(c.listeners[event]) == 0 {
			delete(c.listeners, event)
		}
	}
}

// OnReconnect registers fn to run after every successful redial
func (c *Conn) OnReconnect(fn func()) func() {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.onReconnect[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.onReconnect, id)
		c.listenersMu.Unlock()
	}
}

// ListenerCount returns the number of listeners registered for event
func (c *Conn) ListenerCount(event string) int {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	return len(c.listeners[event])
}

// Emit sends an event with a fresh correlation id and returns that id
func (c *Conn) Emit(event string, payload interface{}) (string, error) {
	id := protocol.NewID()
	if err := c.EmitWithID(id, event, payload); err != nil {
		return "", err
	}
	return id, nil
}

// EmitWithID sends an event under a caller-chosen correlation id, so the
// caller can record state under the id before any reply can arrive.
func (c *Conn) EmitWithID(id, event string, payload interface{}) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	msg := protocol.NewMessageWithID(event, id, payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	logger.Debug("Emitted relay event", "event", event, "id", id)
	return nil
}

// Close shuts the connection down for good and stops any reconnection
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.cancel()
	c.setState(StateDisconnected)

	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return ws.Close()
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}

	header := http.Header{}
	if c.opts.UserID != "" {
		q := u.Query()
		q.Set("userId", c.opts.UserID)
		u.RawQuery = q.Encode()
		header.Set("X-User-ID", c.opts.UserID)
	}

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return ws, nil
}

func (c *Conn) attach(ws *websocket.Conn, reconnected bool) {
	c.mu.Lock()
	if c.closed || c.ws != nil {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.reconnecting = false
	c.mu.Unlock()

	c.setState(StateConnected)
	c.emitLocal(EventConnect, nil)

	// Reconnect callbacks finish before the first frame is read, so state they
	// reload is never older than the broadcasts that follow.
	if reconnected {
		c.listenersMu.RLock()
		fns := make([]func(), 0, len(c.onReconnect))
		for _, fn := range c.onReconnect {
			fns = append(fns, fn)
		}
		c.listenersMu.RUnlock()
		for _, fn := range fns {
			fn()
		}
	}

	go c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(ws, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn("Dropping malformed relay frame", "error", err)
			continue
		}
		msg := &protocol.Message{
			Type:      f.Type,
			ID:        f.ID,
			ReplyTo:   f.ReplyTo,
			Timestamp: f.Timestamp,
		}
		if len(f.Payload) > 0 {
			msg.Payload = f.Payload
		}
		c.dispatch(msg)
	}
}

func (c *Conn) handleDisconnect(ws *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	closed := c.closed
	c.mu.Unlock()

	ws.Close()
	c.setState(StateDisconnected)
	if closed {
		return
	}

	c.emitLocal(EventDisconnect, cause)
	if c.opts.ReconnectAttempts > 0 {
		c.Reconnect()
	}
}

func (c *Conn) reconnectLoop() {
	attempts := c.opts.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		wait := time.Duration(attempt) * c.opts.ReconnectDelay
		logger.Debug("Reconnecting to relay", "attempt", attempt, "wait", wait)

		select {
		case <-c.ctx.Done():
			c.stopReconnecting()
			return
		case <-time.After(wait):
		}

		ws, err := c.dial(c.ctx)
		if err != nil {
			c.emitLocal(EventConnectError, err)
			if errors.Is(err, ErrUnauthorized) {
				break
			}
			continue
		}
		c.attach(ws, true)
		return
	}

	c.stopReconnecting()
	logger.Warn("Relay reconnection attempts exhausted", "attempts", attempts)
}

func (c *Conn) stopReconnecting() {
	c.mu.Lock()
	c.reconnecting = false
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

func (c *Conn) dispatch(msg *protocol.Message) {
	c.listenersMu.RLock()
	fns := make([]Listener, 0, len(c.listeners[msg.Type]))
	for _, fn := range c.listeners[msg.Type] {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (c *Conn) emitLocal(event string, err error) {
	var payload interface{}
	if err != nil {
		payload = protocol.FailurePayload{Message: err.Error()}
	}
	c.dispatch(protocol.NewMessage(event, payload))
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}
