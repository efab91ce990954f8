package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whispers-app/whispers/internal/cache"
	"github.com/whispers-app/whispers/internal/database"
	apperrors "github.com/whispers-app/whispers/internal/errors"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/repository"
	"github.com/whispers-app/whispers/internal/websocket"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// Handlers serves the REST API used for confirmed-state reads
type Handlers struct {
	store repository.Store
	db    *gorm.DB
	redis *cache.RedisClient
}

// NewHandlers creates a new handlers instance. redis may be nil.
func NewHandlers(store repository.Store, db *gorm.DB, redis *cache.RedisClient) *Handlers {
	return &Handlers{
		store: store,
		db:    db,
		redis: redis,
	}
}

// Health reports backing store (and Redis, when configured) connectivity
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := database.Health(ctx, h.db); err != nil {
		logger.WarnWithFields("Database health check failed", err)
		apperrors.Respond(c, apperrors.ServiceUnavailable("database").WithDetails(err.Error()))
		return
	}

	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"database":  "ok",
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			logger.WarnWithFields("Redis health check failed", err)
			apperrors.Respond(c, apperrors.ServiceUnavailable("redis").WithDetails(err.Error()))
			return
		}
		body["redis"] = "ok"
	}

	c.JSON(http.StatusOK, body)
}

// pagination parses limit/offset query parameters
func pagination(c *gin.Context) (int, int, *apperrors.APIError) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultLimit)))
	if err != nil {
		return 0, 0, apperrors.ValidationError("limit", "limit must be an integer")
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, apperrors.ValidationError("offset", "offset must be an integer")
	}
	limit, offset = repository.ClampPage(limit, offset)
	return limit, offset, nil
}

// respondStoreError maps repository errors onto API errors
func respondStoreError(c *gin.Context, resource string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		apperrors.Respond(c, apperrors.NotFound(resource))
	case errors.Is(err, repository.ErrInvalidInput):
		apperrors.Respond(c, apperrors.BadRequest("invalid "+resource+" request"))
	default:
		logger.Log.Error("Store call failed", zap.String("resource", resource), zap.Error(err))
		apperrors.Respond(c, apperrors.InternalError("failed to load "+resource))
	}
}

func meta(limit, offset, total int) gin.H {
	return gin.H{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}

// viewer is the caller named by X-User-ID, or "" for anonymous reads
func viewer(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(websocket.UserIDHeader))
}

// markLikedPosts sets ViewerLiked on the posts the caller has liked
func (h *Handlers) markLikedPosts(c *gin.Context, posts []protocol.Post) error {
	userID := viewer(c)
	if userID == "" || len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	liked, err := h.store.LikedPostIDs(c.Request.Context(), userID, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].ViewerLiked = liked[posts[i].ID]
	}
	return nil
}

// markLikedComments sets ViewerLiked anywhere in a comment tree
func (h *Handlers) markLikedComments(c *gin.Context, comments []*protocol.Comment) error {
	userID := viewer(c)
	if userID == "" || len(comments) == 0 {
		return nil
	}

	var ids []string
	var collect func([]*protocol.Comment)
	collect = func(list []*protocol.Comment) {
		for _, comment := range list {
			ids = append(ids, comment.ID)
			collect(comment.Replies)
		}
	}
	collect(comments)

	liked, err := h.store.LikedCommentIDs(c.Request.Context(), userID, ids)
	if err != nil {
		return err
	}
	var mark func([]*protocol.Comment)
	mark = func(list []*protocol.Comment) {
		for _, comment := range list {
			comment.ViewerLiked = liked[comment.ID]
			mark(comment.Replies)
		}
	}
	mark(comments)
	return nil
}
