package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/whispers-app/whispers/internal/errors"
	"github.com/whispers-app/whispers/internal/models"
	"github.com/whispers-app/whispers/internal/websocket"
)

// GetProfile returns a public profile
func (h *Handlers) GetProfile(c *gin.Context) {
	profile, err := h.store.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpsertMyProfile creates or updates the caller's profile. The caller is
// identified by the same header the relay handshake accepts. Profiles are
// normally provisioned by the identity flow; this exists for development.
func (h *Handlers) UpsertMyProfile(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(websocket.UserIDHeader))
	if userID == "" {
		apperrors.Respond(c, apperrors.Unauthorized(websocket.UserIDHeader+" header is required"))
		return
	}

	var req struct {
		Username   string `json:"username" binding:"omitempty,max=64"`
		AvatarSeed string `json:"avatar_seed" binding:"omitempty,max=128"`
	}
	// an empty body keeps the generated defaults
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apperrors.Respond(c, apperrors.BadRequest("invalid profile").WithDetails(err.Error()))
		return
	}

	profile, err := h.store.UpsertProfile(c.Request.Context(), &models.Profile{
		ID:         userID,
		Username:   strings.TrimSpace(req.Username),
		AvatarSeed: strings.TrimSpace(req.AvatarSeed),
	})
	if err != nil {
		respondStoreError(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
