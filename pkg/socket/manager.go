package socket

import (
	"context"
	"sync"

	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// Manager owns the single relay connection of a client process.
//
// The connection is keyed by process lifetime, not by user: once created,
// GetOrCreate returns the same Conn whatever user id it is given. Call Reset
// to switch identities.
type Manager struct {
	opts Options

	mu   sync.Mutex
	conn *Conn
}

// NewManager creates a Manager. opts.UserID is ignored; the identity comes
// from the first GetOrCreate call.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// GetOrCreate returns the process connection, dialing it on first use with
// userID in the handshake. A stored connection that is not connected gets a
// reconnect request and is returned as is. The returned error reports a
// failed first dial; the Conn is still returned and keeps retrying.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if userID != m.conn.UserID() {
			logger.Debug("Reusing relay connection opened for another user",
				"requested", userID, "connected_as", m.conn.UserID())
		}
		if !m.conn.IsConnected() {
			m.conn.Reconnect()
		}
		return m.conn, nil
	}

	opts := m.opts
	opts.UserID = userID
	conn := New(opts)
	attachLifecycleLogging(conn)
	m.conn = conn

	if err := conn.Connect(ctx); err != nil {
		if opts.ReconnectAttempts > 0 {
			conn.Reconnect()
		}
		return conn, err
	}
	return conn, nil
}

// Current returns the stored connection, or nil
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Reset closes and forgets the stored connection
func (m *Manager) Reset() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func attachLifecycleLogging(conn *Conn) {
	userID := conn.UserID()
	conn.On(EventConnect, func(*protocol.Message) {
		logger.Info("Connected to relay", "user_id", userID)
	})
	conn.On(EventDisconnect, func(msg *protocol.Message) {
		logger.Warn("Disconnected from relay", "user_id", userID, "reason", failureMessage(msg))
	})
	conn.On(EventConnectError, func(msg *protocol.Message) {
		logger.Error("Relay connection error", "user_id", userID, "error", failureMessage(msg))
	})
}

func failureMessage(msg *protocol.Message) string {
	var p protocol.FailurePayload
	if err := msg.ParsePayload(&p); err != nil {
		return ""
	}
	return p.Message
}
