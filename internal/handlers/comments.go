package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whispers-app/whispers/internal/models"
)

// GetComments returns a post's comment tree: top-level comments with nested replies
func (h *Handlers) GetComments(c *gin.Context) {
	postID := c.Param("id")

	thread, err := h.store.GetCommentThread(c.Request.Context(), postID)
	if err != nil {
		respondStoreError(c, "post", err)
		return
	}
	wire := models.WireComments(thread)
	if err := h.markLikedComments(c, wire); err != nil {
		respondStoreError(c, "comments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post_id":  postID,
		"comments": wire,
	})
}
