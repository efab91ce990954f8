package websocket

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/whispers-app/whispers/internal/errors"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/metrics"
	"github.com/whispers-app/whispers/pkg/protocol"
)

const (
	// UserIDQueryParam carries the handshake identity for browser clients
	UserIDQueryParam = "userId"
	// UserIDHeader carries the handshake identity for other clients
	UserIDHeader = "X-User-ID"
)

// Handler handles relay HTTP upgrade requests
type Handler struct {
	hub *Hub
}

// NewHandler creates a new relay handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandshakeUserID extracts the identity presented by a connecting client.
// The value is trusted as-is; identity is vetted upstream.
func HandshakeUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get(UserIDQueryParam)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// HandleWebSocket upgrades the request and serves the connection until it ends.
// Requests without a handshake user id get 401 and are never upgraded.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := HandshakeUserID(c.Request)
	if userID == "" {
		metrics.Get().WSRejectedTotal.WithLabelValues("missing_user_id").Inc()
		logger.Log.Warn("Relay handshake rejected: no user id", logger.WithIP(c.ClientIP()))
		apperrors.Respond(c, apperrors.Unauthorized("userId is required in the handshake"))
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// identity comes from the handshake, not from cookies
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("Relay upgrade failed", logger.WithUserID(userID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	if err := h.hub.Register(client); err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	_ = client.Send(protocol.NewMessage(protocol.MessageTypeSystem, protocol.SystemPayload{
		Event:   "connected",
		Message: "Welcome to Whispers",
		Data: map[string]interface{}{
			"user_id":     userID,
			"server_time": time.Now().UTC().UnixMilli(),
			"session_id":  fmt.Sprintf("%p", client),
		},
	}))

	go client.WritePump()
	client.ReadPump()
}

// HandleMetrics returns hub counters for monitoring
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": len(h.hub.GetOnlineUsers()),
		"timestamp":    time.Now().UTC(),
	})
}

// Hub returns the hub served by this handler
func (h *Handler) Hub() *Hub {
	return h.hub
}
