package protocol

import "time"

// Envelope-level message types
const (
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
)

// Client to relay events
const (
	EventCreatePost    = "create_post"
	EventLikePost      = "like_post"
	EventCreateComment = "create_comment"
	EventLikeComment   = "like_comment"
)

// Relay to client broadcasts
const (
	EventNewPost           = "new_post"
	EventLikeUpdate        = "like_update"
	EventNewComment        = "new_comment"
	EventCommentLikeUpdate = "comment_like_update"
)

// Sender-only failure notices
const (
	EventPostError        = "post_error"
	EventCommentError     = "comment_error"
	EventLikeError        = "like_error"
	EventCommentLikeError = "comment_like_error"
)

// CreatePostPayload is the body of create_post
type CreatePostPayload struct {
	Content string  `json:"content"`
	UserID  string  `json:"userId"`
	Image   *string `json:"image,omitempty"`
}

// LikePostPayload is the body of like_post
type LikePostPayload struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
	Liked  bool   `json:"liked"`
}

// CreateCommentPayload is the body of create_comment. A non-empty ParentID
// makes the comment a reply.
type CreateCommentPayload struct {
	PostID   string  `json:"postId"`
	UserID   string  `json:"userId"`
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

// LikeCommentPayload is the body of like_comment
type LikeCommentPayload struct {
	CommentID string `json:"commentId"`
	UserID    string `json:"userId"`
	Liked     bool   `json:"liked"`
}

// Profile is the public author info joined into posts
type Profile struct {
	Username   string `json:"username"`
	AvatarSeed string `json:"avatar_seed"`
}

// Post is the full post record carried by new_post and the REST API
type Post struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Content       string    `json:"content"`
	ImageURL      *string   `json:"image_url"`
	Likes         int64     `json:"likes"`
	CommentsCount int64     `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
	Profile       *Profile  `json:"profile,omitempty"`
	// ViewerLiked is set on REST reads made with X-User-ID
	ViewerLiked bool `json:"viewer_liked,omitempty"`
}

// Comment is the full comment record carried by new_comment. Replies is only
// populated in thread responses.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	UserID    string     `json:"user_id"`
	Content   string     `json:"content"`
	ParentID  *string    `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
	Likes     int64      `json:"likes"`
	Replies   []*Comment `json:"replies,omitempty"`
	// ViewerLiked is set on REST reads made with X-User-ID
	ViewerLiked bool `json:"viewer_liked,omitempty"`
}

// IsReply reports whether the comment nests under another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// LikeUpdatePayload is the body of like_update
type LikeUpdatePayload struct {
	PostID     string `json:"postId"`
	LikesCount int64  `json:"likesCount"`
	UserID     string `json:"userId"`
	Liked      bool   `json:"liked"`
}

// CommentLikeUpdatePayload is the body of comment_like_update
type CommentLikeUpdatePayload struct {
	CommentID  string `json:"commentId"`
	LikesCount int64  `json:"likesCount"`
	UserID     string `json:"userId"`
	Liked      bool   `json:"liked"`
}

// FailurePayload is the body of post_error and comment_error
type FailurePayload struct {
	Message string `json:"message"`
}

// ToggleFailurePayload is the body of like_error and comment_like_error
type ToggleFailurePayload struct {
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	Liked     bool   `json:"liked"`
	Message   string `json:"message"`
}

// ErrorPayload is the body of a generic protocol error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload is the body of ping
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload is the body of pong
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload is the body of system notices (welcome, shutdown)
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
