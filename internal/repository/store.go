package repository

import (
	"context"
	"errors"

	"github.com/whispers-app/whispers/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidParent = errors.New("parent comment does not belong to this post")
)

// FeedType selects the ordering of a feed query
type FeedType string

const (
	// FeedTrending lists posts with at least one like, most liked first
	FeedTrending FeedType = "trending"
	// FeedLatest lists every post, newest first
	FeedLatest FeedType = "latest"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Store is the backing store adapter used by the relay and the REST API.
// Denormalized counts are always recomputed from source rows.
type Store interface {
	// Posts
	CreatePost(ctx context.Context, userID, content string, imageURL *string) (*models.Post, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	ListFeed(ctx context.Context, feed FeedType, limit, offset int) ([]*models.Post, error)
	ListUserPosts(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error)

	// SetPostLike inserts (idempotently) or deletes the (post, user) like row,
	// writes the recomputed count onto the post and returns it.
	SetPostLike(ctx context.Context, postID, userID string, liked bool) (int64, error)

	// Comments
	CreateComment(ctx context.Context, postID, userID, content string, parentID *string) (*models.Comment, error)
	GetCommentThread(ctx context.Context, postID string) ([]*models.Comment, error)
	SetCommentLike(ctx context.Context, commentID, userID string, liked bool) (int64, error)

	// Viewer state for REST reads
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	LikedCommentIDs(ctx context.Context, userID string, commentIDs []string) (map[string]bool, error)

	// Profiles
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error)
}

// ClampPage normalizes limit/offset query values
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
