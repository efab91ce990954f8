package feed

import (
	"context"
	"time"

	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
	"github.com/whispers-app/whispers/pkg/socket"
)

// CommentView is a comment as the local user should see it. Replies holds
// the nested view; the embedded record's Replies is always nil.
type CommentView struct {
	protocol.Comment
	Liked   bool
	Pending bool
	Replies []*CommentView
}

type commentDelta struct {
	id        string
	commentID string
	liked     bool
	// comment is set for an optimistic create
	comment *protocol.Comment
}

// ThreadStore is one post's comment tree kept current by new_comment and
// comment_like_update.
type ThreadStore struct {
	base
	fetcher Fetcher
	postID  string
	userID  string

	roots   []*protocol.Comment
	index   map[string]*protocol.Comment
	liked   map[string]bool
	pending []*commentDelta
}

// NewThreadStore creates an empty store for postID acting as userID
func NewThreadStore(fetcher Fetcher, postID, userID string) *ThreadStore {
	return &ThreadStore{
		fetcher: fetcher,
		postID:  postID,
		userID:  userID,
		index:   make(map[string]*protocol.Comment),
		liked:   make(map[string]bool),
	}
}

// PostID returns the post this thread belongs to
func (s *ThreadStore) PostID() string {
	return s.postID
}

// Attach subscribes to the comment broadcasts on conn and returns the
// matching detach func.
func (s *ThreadStore) Attach(conn Conn) func() {
	return s.attach(conn, map[string]socket.Listener{
		protocol.EventNewComment:        s.handleBroadcast,
		protocol.EventCommentLikeUpdate: s.handleBroadcast,
		protocol.EventCommentError:      s.handleCommentError,
		protocol.EventCommentLikeError:  s.handleCommentLikeError,
		protocol.MessageTypeError:       s.handleRelayError,
	}, s.handleReconnect)
}

// Load replaces confirmed state with the thread from the API. Broadcasts
// that arrive during the fetch are applied again on top of the new tree.
func (s *ThreadStore) Load(ctx context.Context) error {
	s.beginLoad()
	comments, err := s.fetcher.Comments(ctx, s.postID)
	if err != nil {
		s.abortLoad()
		return err
	}

	s.mu.Lock()
	s.roots = comments
	s.index = make(map[string]*protocol.Comment)
	s.liked = make(map[string]bool)
	var walk func([]*protocol.Comment)
	walk = func(list []*protocol.Comment) {
		for _, c := range list {
			s.index[c.ID] = c
			if c.ViewerLiked {
				s.liked[c.ID] = true
			}
			walk(c.Replies)
		}
	}
	walk(s.roots)
	for _, msg := range s.endLoadLocked() {
		s.applyLocked(msg)
	}
	s.mu.Unlock()

	s.changed()
	return nil
}

// Comments returns the current tree with pending comments and likes applied
func (s *ThreadStore) Comments() []*CommentView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make(map[string]*CommentView, len(s.index))
	var build func(c *protocol.Comment) *CommentView
	build = func(c *protocol.Comment) *CommentView {
		v := &CommentView{Comment: *c, Liked: s.liked[c.ID]}
		v.Comment.Replies = nil
		views[c.ID] = v
		for _, reply := range c.Replies {
			v.Replies = append(v.Replies, build(reply))
		}
		return v
	}

	roots := make([]*CommentView, 0, len(s.roots))
	for _, c := range s.roots {
		roots = append(roots, build(c))
	}

	for _, d := range s.pending {
		if d.comment != nil {
			v := &CommentView{Comment: *d.comment, Pending: true}
			if !d.comment.IsReply() {
				roots = append(roots, v)
			} else if parent, ok := views[*d.comment.ParentID]; ok {
				parent.Replies = append(parent.Replies, v)
			}
			views[v.ID] = v
			continue
		}
		if v, ok := views[d.commentID]; ok {
			v.Likes = applyLike(v.Likes, v.Liked, d.liked)
			v.Liked = d.liked
		}
	}
	return roots
}

// Find returns the view of one comment anywhere in the tree
func (s *ThreadStore) Find(commentID string) (*CommentView, bool) {
	var search func([]*CommentView) *CommentView
	search = func(list []*CommentView) *CommentView {
		for _, v := range list {
			if v.ID == commentID {
				return v
			}
			if found := search(v.Replies); found != nil {
				return found
			}
		}
		return nil
	}
	found := search(s.Comments())
	return found, found != nil
}

// PendingCount returns the number of unanswered local actions
func (s *ThreadStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// AddComment shows the comment immediately and emits create_comment. A nil
// or empty parentID makes a top-level comment.
func (s *ThreadStore) AddComment(content string, parentID *string) (string, error) {
	if parentID != nil && *parentID == "" {
		parentID = nil
	}

	id := protocol.NewID()
	s.mu.Lock()
	conn, err := s.connLocked()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.pending = append(s.pending, &commentDelta{
		id: id,
		comment: &protocol.Comment{
			ID:        id,
			PostID:    s.postID,
			UserID:    s.userID,
			Content:   content,
			ParentID:  parentID,
			CreatedAt: time.Now().UTC(),
		},
	})
	s.mu.Unlock()
	s.changed()

	return id, conn.EmitWithID(id, protocol.EventCreateComment, protocol.CreateCommentPayload{
		PostID:   s.postID,
		UserID:   s.userID,
		Content:  content,
		ParentID: parentID,
	})
}

// LikeComment applies the like (or unlike) immediately and emits like_comment
func (s *ThreadStore) LikeComment(commentID string, liked bool) (string, error) {
	id := protocol.NewID()
	s.mu.Lock()
	conn, err := s.connLocked()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.pending = append(s.pending, &commentDelta{id: id, commentID: commentID, liked: liked})
	s.mu.Unlock()
	s.changed()

	return id, conn.EmitWithID(id, protocol.EventLikeComment, protocol.LikeCommentPayload{
		CommentID: commentID,
		UserID:    s.userID,
		Liked:     liked,
	})
}

func (s *ThreadStore) handleBroadcast(msg *protocol.Message) {
	s.mu.Lock()
	s.recordLocked(msg)
	changed := s.applyLocked(msg)
	s.mu.Unlock()

	if changed {
		s.changed()
	}
}

// applyLocked applies a new_comment or comment_like_update to confirmed
// state and reports whether anything changed; s.mu must be held
func (s *ThreadStore) applyLocked(msg *protocol.Message) bool {
	switch msg.Type {
	case protocol.EventNewComment:
		var comment protocol.Comment
		if err := msg.ParsePayload(&comment); err != nil || comment.ID == "" {
			logger.Warn("Malformed new_comment", "error", err)
			return false
		}
		comment.Replies = nil
		dropped := s.dropPendingLocked(msg.ReplyTo)
		placed := s.placeLocked(&comment)
		return dropped || placed

	case protocol.EventCommentLikeUpdate:
		var update protocol.CommentLikeUpdatePayload
		if err := msg.ParsePayload(&update); err != nil {
			logger.Warn("Malformed comment_like_update", "error", err)
			return false
		}
		dropped := s.dropPendingLocked(msg.ReplyTo)
		comment, ok := s.index[update.CommentID]
		if ok {
			comment.Likes = update.LikesCount
			if update.UserID == s.userID {
				s.liked[update.CommentID] = update.Liked
			}
		}
		return ok || dropped
	}
	return false
}

// placeLocked adds a confirmed comment: top level without a parent, under its
// parent otherwise. A reply whose parent is not loaded is dropped.
func (s *ThreadStore) placeLocked(c *protocol.Comment) bool {
	if c.PostID != s.postID {
		return false
	}
	if _, dup := s.index[c.ID]; dup {
		return false
	}

	if !c.IsReply() {
		s.roots = append(s.roots, c)
	} else {
		parent, ok := s.index[*c.ParentID]
		if !ok {
			logger.Debug("Dropping reply to a comment that is not loaded",
				"comment_id", c.ID, "parent_id", *c.ParentID)
			return false
		}
		parent.Replies = append(parent.Replies, c)
	}
	s.index[c.ID] = c
	return true
}

func (s *ThreadStore) handleCommentError(msg *protocol.Message) {
	s.mu.Lock()
	s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	s.changed()
	s.failed(protocol.EventCommentError, msg)
}

func (s *ThreadStore) handleCommentLikeError(msg *protocol.Message) {
	s.mu.Lock()
	s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	s.changed()
	s.failed(protocol.EventCommentLikeError, msg)
}

// handleRelayError settles a pending action the relay refused outright
// (rate limited, unknown type). Errors answering other ids are ignored.
func (s *ThreadStore) handleRelayError(msg *protocol.Message) {
	s.mu.Lock()
	dropped := s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	if !dropped {
		return
	}
	s.changed()
	s.failed(protocol.MessageTypeError, msg)
}

func (s *ThreadStore) handleReconnect() {
	s.mu.Lock()
	discarded := len(s.pending)
	s.pending = nil
	s.mu.Unlock()

	logger.Debug("Reloading thread after reconnect", "post_id", s.postID, "discarded", discarded)
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	if err := s.Load(ctx); err != nil {
		logger.Error("Thread reload failed", "post_id", s.postID, "error", err)
		s.changed()
	}
}

func (s *ThreadStore) dropPendingLocked(id string) bool {
	if id == "" {
		return false
	}
	for i, d := range s.pending {
		if d.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}
