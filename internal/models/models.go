package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is an author's public identity. Rows are owned by the external
// identity flow; the relay only reads them.
type Profile struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Username   string    `gorm:"size:64;not null" json:"username"`
	AvatarSeed string    `gorm:"size:128" json:"avatar_seed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Post is a whisper. Likes and CommentsCount are recomputed from source rows
// on every mutation and never incremented in place.
type Post struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:64;not null;index" json:"user_id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	ImageURL      *string   `gorm:"type:text" json:"image_url"`
	Likes         int64     `gorm:"not null;default:0" json:"likes"`
	CommentsCount int64     `gorm:"not null;default:0" json:"comments_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`

	Profile *Profile `gorm:"foreignKey:UserID;references:ID" json:"profile,omitempty"`
}

// Comment belongs to a post. ParentID, when set, names another comment of the
// same post and marks this one as a reply.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;not null;index:idx_comments_post_created,priority:1" json:"post_id"`
	ParentID  *string   `gorm:"size:36;index" json:"parent_id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	CreatedAt time.Time `gorm:"index:idx_comments_post_created,priority:2" json:"created_at"`

	// Replies is populated when a thread is assembled; it is not a column
	Replies []*Comment `gorm:"-" json:"replies,omitempty"`
}

// IsReply reports whether the comment is nested under another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// PostLike is one user's like on a post, unique per (post, user)
type PostLike struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;not null;uniqueIndex:idx_post_likes_unique,priority:1" json:"post_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_post_likes_unique,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentLike is one user's like on a comment, unique per (comment, user)
type CommentLike struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CommentID string    `gorm:"size:36;not null;uniqueIndex:idx_comment_likes_unique,priority:1" json:"comment_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_comment_likes_unique,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Profile) TableName() string     { return "profiles" }
func (Post) TableName() string        { return "posts" }
func (Comment) TableName() string     { return "comments" }
func (PostLike) TableName() string    { return "post_likes" }
func (CommentLike) TableName() string { return "comment_likes" }

// All returns every model managed by migrations
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Post{},
		&Comment{},
		&PostLike{},
		&CommentLike{},
	}
}

// BeforeCreate hooks for GORM
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (l *PostLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

func (l *CommentLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
