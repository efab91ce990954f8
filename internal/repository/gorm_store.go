package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whispers-app/whispers/internal/models"
)

// gormStore implements Store on postgres or sqlite
type gormStore struct {
	db *gorm.DB
}

// NewStore creates a Store backed by db
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreatePost(ctx context.Context, userID, content string, imageURL *string) (*models.Post, error) {
	if userID == "" || strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}
	if imageURL != nil && *imageURL == "" {
		imageURL = nil
	}

	post := &models.Post{
		UserID:   userID,
		Content:  content,
		ImageURL: imageURL,
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, err
	}

	// re-select with the author's profile joined in
	return s.GetPost(ctx, post.ID)
}

func (s *gormStore) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Where("id = ?", postID).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *gormStore) ListFeed(ctx context.Context, feed FeedType, limit, offset int) ([]*models.Post, error) {
	limit, offset = ClampPage(limit, offset)

	query := s.db.WithContext(ctx).Preload("Profile")
	switch feed {
	case FeedTrending:
		query = query.Where("likes > 0").Order("likes DESC").Order("created_at DESC")
	case FeedLatest, "":
		query = query.Order("created_at DESC")
	default:
		return nil, ErrInvalidInput
	}

	var posts []*models.Post
	err := query.Limit(limit).Offset(offset).Find(&posts).Error
	return posts, err
}

func (s *gormStore) ListUserPosts(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error) {
	limit, offset = ClampPage(limit, offset)

	var posts []*models.Post
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (s *gormStore) SetPostLike(ctx context.Context, postID, userID string, liked bool) (int64, error) {
	if postID == "" || userID == "" {
		return 0, ErrInvalidInput
	}

	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// toggles on one post run one at a time behind the row lock
		if err := lockRow(tx, &models.Post{}, postID); err != nil {
			return err
		}

		var err error
		if liked {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.PostLike{PostID: postID, UserID: userID}).Error
		} else {
			err = tx.Where("post_id = ? AND user_id = ?", postID, userID).
				Delete(&models.PostLike{}).Error
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("likes", count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *gormStore) CreateComment(ctx context.Context, postID, userID, content string, parentID *string) (*models.Comment, error) {
	if postID == "" || userID == "" || strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	db := s.db.WithContext(ctx)

	if err := exists(db, &models.Post{}, postID); err != nil {
		return nil, err
	}

	if parentID != nil {
		var n int64
		err := db.Model(&models.Comment{}).
			Where("id = ? AND post_id = ?", *parentID, postID).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrInvalidParent
		}
	}

	comment := &models.Comment{
		PostID:   postID,
		ParentID: parentID,
		UserID:   userID,
		Content:  content,
	}
	if err := db.Create(comment).Error; err != nil {
		return nil, err
	}

	err := db.Exec(
		"UPDATE posts SET comments_count = (SELECT COUNT(*) FROM comments WHERE post_id = ?) WHERE id = ?",
		postID, postID,
	).Error
	if err != nil {
		return nil, err
	}

	return comment, nil
}

func (s *gormStore) GetCommentThread(ctx context.Context, postID string) ([]*models.Comment, error) {
	db := s.db.WithContext(ctx)
	if err := exists(db, &models.Post{}, postID); err != nil {
		return nil, err
	}

	var comments []*models.Comment
	err := db.Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return BuildThread(comments), nil
}

func (s *gormStore) SetCommentLike(ctx context.Context, commentID, userID string, liked bool) (int64, error) {
	if commentID == "" || userID == "" {
		return 0, ErrInvalidInput
	}

	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &models.Comment{}, commentID); err != nil {
			return err
		}

		var err error
		if liked {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.CommentLike{CommentID: commentID, UserID: userID}).Error
		} else {
			err = tx.Where("comment_id = ? AND user_id = ?", commentID, userID).
				Delete(&models.CommentLike{}).Error
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumn("likes", count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LikedPostIDs returns which of postIDs userID has liked
func (s *gormStore) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if userID == "" || len(postIDs) == 0 {
		return liked, nil
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

// LikedCommentIDs returns which of commentIDs userID has liked
func (s *gormStore) LikedCommentIDs(ctx context.Context, userID string, commentIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if userID == "" || len(commentIDs) == 0 {
		return liked, nil
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.CommentLike{}).
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Pluck("comment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (s *gormStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *gormStore) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	if profile == nil || profile.ID == "" {
		return nil, ErrInvalidInput
	}
	if profile.Username == "" {
		profile.Username = models.RandomUsername()
	}
	if profile.AvatarSeed == "" {
		profile.AvatarSeed = profile.Username
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar_seed"}),
	}).Create(profile).Error
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, profile.ID)
}

// lockRow takes a row lock on model's row with the given id for the rest of
// tx, or returns ErrNotFound. sqlite has no row locks and serializes writers.
func lockRow(tx *gorm.DB, model interface{}, id string) error {
	q := tx.Model(model)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var ids []string
	err := q.Where("id = ?", id).Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNotFound
	}
	return nil
}

// exists returns ErrNotFound unless a row of model's table has the given id
func exists(db *gorm.DB, model interface{}, id string) error {
	var n int64
	if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
