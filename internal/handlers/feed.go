package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/whispers-app/whispers/internal/errors"
	"github.com/whispers-app/whispers/internal/models"
	"github.com/whispers-app/whispers/internal/repository"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// GetFeed lists posts. type=trending keeps liked posts ordered by likes;
// type=latest (default) lists everything newest first.
func (h *Handlers) GetFeed(c *gin.Context) {
	feedType := repository.FeedType(c.DefaultQuery("type", string(repository.FeedLatest)))
	if feedType != repository.FeedLatest && feedType != repository.FeedTrending {
		apperrors.Respond(c, apperrors.ValidationError("type", "type must be trending or latest"))
		return
	}

	limit, offset, apiErr := pagination(c)
	if apiErr != nil {
		apperrors.Respond(c, apiErr)
		return
	}

	posts, err := h.store.ListFeed(c.Request.Context(), feedType, limit, offset)
	if err != nil {
		respondStoreError(c, "feed", err)
		return
	}
	wire := models.WirePosts(posts)
	if err := h.markLikedPosts(c, wire); err != nil {
		respondStoreError(c, "feed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type":  feedType,
		"posts": wire,
		"meta":  meta(limit, offset, len(posts)),
	})
}

// GetPost returns one post with its author's profile
func (h *Handlers) GetPost(c *gin.Context) {
	post, err := h.store.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, "post", err)
		return
	}
	wire := []protocol.Post{post.Wire()}
	if err := h.markLikedPosts(c, wire); err != nil {
		respondStoreError(c, "post", err)
		return
	}
	c.JSON(http.StatusOK, wire[0])
}

// GetUserPosts lists one author's posts, newest first
func (h *Handlers) GetUserPosts(c *gin.Context) {
	limit, offset, apiErr := pagination(c)
	if apiErr != nil {
		apperrors.Respond(c, apiErr)
		return
	}

	posts, err := h.store.ListUserPosts(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondStoreError(c, "posts", err)
		return
	}
	wire := models.WirePosts(posts)
	if err := h.markLikedPosts(c, wire); err != nil {
		respondStoreError(c, "posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": wire,
		"meta":  meta(limit, offset, len(posts)),
	})
}
