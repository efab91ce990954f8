package feed

import (
	"context"
	"time"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
	"github.com/whispers-app/whispers/pkg/socket"
)

// FeedOptions configures a FeedStore
type FeedOptions struct {
	// Ordering is api.FeedTrending or api.FeedLatest
	Ordering string
	// AuthorID limits the store to one author's posts (a profile's own list).
	// Only new_post broadcasts from that author are added.
	AuthorID string
	// UserID is the local user; it is sent with likes and posts
	UserID string
	Limit  int
}

// PostView is a post as the local user should see it
type PostView struct {
	protocol.Post
	Liked   bool
	Pending bool
}

type postDelta struct {
	id     string
	postID string
	liked  bool
	// post is set for an optimistic create
	post *protocol.Post
}

// FeedStore is a list of posts kept current by new_post and like_update
type FeedStore struct {
	base
	fetcher Fetcher
	opts    FeedOptions

	order   []string
	posts   map[string]*protocol.Post
	liked   map[string]bool
	pending []*postDelta
}

// NewFeedStore creates an empty FeedStore; call Load and Attach to fill it
func NewFeedStore(fetcher Fetcher, opts FeedOptions) *FeedStore {
	if opts.Ordering == "" {
		opts.Ordering = api.FeedLatest
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &FeedStore{
		fetcher: fetcher,
		opts:    opts,
		posts:   make(map[string]*protocol.Post),
		liked:   make(map[string]bool),
	}
}

// Attach subscribes to the feed broadcasts on conn and returns the matching
// detach func.
func (s *FeedStore) Attach(conn Conn) func() {
	return s.attach(conn, map[string]socket.Listener{
		protocol.EventNewPost:     s.handleBroadcast,
		protocol.EventLikeUpdate:  s.handleBroadcast,
		protocol.EventPostError:   s.handlePostError,
		protocol.EventLikeError:   s.handleLikeError,
		protocol.MessageTypeError: s.handleRelayError,
	}, s.handleReconnect)
}

// Load replaces confirmed state with a fresh page from the API. Broadcasts
// that arrive during the fetch are applied again on top of the new page.
func (s *FeedStore) Load(ctx context.Context) error {
	s.beginLoad()

	var (
		resp *api.FeedResponse
		err  error
	)
	if s.opts.AuthorID != "" {
		resp, err = s.fetcher.UserPosts(ctx, s.opts.AuthorID, s.opts.Limit, 0)
	} else {
		resp, err = s.fetcher.Feed(ctx, s.opts.Ordering, s.opts.Limit, 0)
	}
	if err != nil {
		s.abortLoad()
		return err
	}

	s.mu.Lock()
	s.order = make([]string, 0, len(resp.Posts))
	s.posts = make(map[string]*protocol.Post, len(resp.Posts))
	s.liked = make(map[string]bool)
	for i := range resp.Posts {
		post := resp.Posts[i]
		if _, dup := s.posts[post.ID]; dup {
			continue
		}
		s.order = append(s.order, post.ID)
		s.posts[post.ID] = &post
		if post.ViewerLiked {
			s.liked[post.ID] = true
		}
	}
	for _, msg := range s.endLoadLocked() {
		s.applyLocked(msg)
	}
	s.mu.Unlock()

	s.changed()
	return nil
}

// Posts returns the current view: pending posts first, then confirmed posts
// in display order with pending likes applied.
func (s *FeedStore) Posts() []PostView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PostView, 0, len(s.order)+len(s.pending))
	for i := len(s.pending) - 1; i >= 0; i-- {
		if d := s.pending[i]; d.post != nil {
			out = append(out, PostView{Post: *d.post, Pending: true})
		}
	}
	for _, id := range s.order {
		out = append(out, s.viewLocked(id))
	}
	return out
}

// Post returns one post's view
func (s *FeedStore) Post(postID string) (PostView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return PostView{}, false
	}
	return s.viewLocked(postID), true
}

// PendingCount returns the number of unanswered local actions
func (s *FeedStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *FeedStore) viewLocked(postID string) PostView {
	v := PostView{Post: *s.posts[postID], Liked: s.liked[postID]}
	for _, d := range s.pending {
		if d.post == nil && d.postID == postID {
			v.Likes = applyLike(v.Likes, v.Liked, d.liked)
			v.Liked = d.liked
		}
	}
	return v
}

// CreatePost shows the post immediately and emits create_post. It returns the
// correlation id of the pending post.
func (s *FeedStore) CreatePost(content string, image *string) (string, error) {
	id := protocol.NewID()
	s.mu.Lock()
	conn, err := s.connLocked()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.pending = append(s.pending, &postDelta{
		id: id,
		post: &protocol.Post{
			ID:        id,
			UserID:    s.opts.UserID,
			Content:   content,
			ImageURL:  image,
			CreatedAt: time.Now().UTC(),
		},
	})
	s.mu.Unlock()
	s.changed()

	return id, conn.EmitWithID(id, protocol.EventCreatePost, protocol.CreatePostPayload{
		Content: content,
		UserID:  s.opts.UserID,
		Image:   image,
	})
}

// Like applies the like (or unlike) immediately and emits like_post. The
// pending delta stays until the relay answers or the connection is re-established.
func (s *FeedStore) Like(postID string, liked bool) (string, error) {
	id := protocol.NewID()
	s.mu.Lock()
	conn, err := s.connLocked()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.pending = append(s.pending, &postDelta{id: id, postID: postID, liked: liked})
	s.mu.Unlock()
	s.changed()

	return id, conn.EmitWithID(id, protocol.EventLikePost, protocol.LikePostPayload{
		PostID: postID,
		UserID: s.opts.UserID,
		Liked:  liked,
	})
}

func (s *FeedStore) handleBroadcast(msg *protocol.Message) {
	s.mu.Lock()
	s.recordLocked(msg)
	changed := s.applyLocked(msg)
	s.mu.Unlock()

	if changed {
		s.changed()
	}
}

// applyLocked applies a new_post or like_update to confirmed state and
// reports whether anything changed; s.mu must be held
func (s *FeedStore) applyLocked(msg *protocol.Message) bool {
	switch msg.Type {
	case protocol.EventNewPost:
		var post protocol.Post
		if err := msg.ParsePayload(&post); err != nil || post.ID == "" {
			logger.Warn("Malformed new_post", "error", err)
			return false
		}
		dropped := s.dropPendingLocked(msg.ReplyTo)
		if s.opts.AuthorID != "" && post.UserID != s.opts.AuthorID {
			return dropped
		}
		if existing, ok := s.posts[post.ID]; ok {
			*existing = post
		} else {
			s.posts[post.ID] = &post
			s.order = append([]string{post.ID}, s.order...)
		}
		return true

	case protocol.EventLikeUpdate:
		var update protocol.LikeUpdatePayload
		if err := msg.ParsePayload(&update); err != nil {
			logger.Warn("Malformed like_update", "error", err)
			return false
		}
		dropped := s.dropPendingLocked(msg.ReplyTo)
		post, ok := s.posts[update.PostID]
		if ok {
			post.Likes = update.LikesCount
			if update.UserID == s.opts.UserID {
				s.liked[update.PostID] = update.Liked
			}
		}
		return ok || dropped
	}
	return false
}

func (s *FeedStore) handlePostError(msg *protocol.Message) {
	s.mu.Lock()
	s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	s.changed()
	s.failed(protocol.EventPostError, msg)
}

func (s *FeedStore) handleLikeError(msg *protocol.Message) {
	s.mu.Lock()
	s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	s.changed()
	s.failed(protocol.EventLikeError, msg)
}

// handleRelayError settles a pending action the relay refused outright
// (rate limited, unknown type). Errors answering other ids are ignored.
func (s *FeedStore) handleRelayError(msg *protocol.Message) {
	s.mu.Lock()
	dropped := s.dropPendingLocked(msg.ReplyTo)
	s.mu.Unlock()
	if !dropped {
		return
	}
	s.changed()
	s.failed(protocol.MessageTypeError, msg)
}

func (s *FeedStore) handleReconnect() {
	s.mu.Lock()
	discarded := len(s.pending)
	s.pending = nil
	s.mu.Unlock()

	logger.Debug("Reloading feed after reconnect", "discarded", discarded)
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	if err := s.Load(ctx); err != nil {
		logger.Error("Feed reload failed", "error", err)
		s.changed()
	}
}

// dropPendingLocked removes the delta with correlation id; s.mu must be held
func (s *FeedStore) dropPendingLocked(id string) bool {
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
