package feed

import (
	"context"
	"sync"
	"time"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/protocol"
	"github.com/whispers-app/whispers/pkg/socket"
)

// fakeConn delivers messages synchronously to registered listeners and
// records what stores emit.
type fakeConn struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]socket.Listener
	reconnect map[int]func()
	emitted   []*protocol.Message
	emitErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		listeners: make(map[string]map[int]socket.Listener),
		reconnect: make(map[int]func()),
	}
}

func (c *fakeConn) On(event string, fn socket.Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.listeners[event] == nil {
		c.listeners[event] = make(map[int]socket.Listener)
	}
	c.listeners[event][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[event], id)
	}
}

func (c *fakeConn) OnReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.reconnect[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.reconnect, id)
	}
}

func (c *fakeConn) EmitWithID(id, event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, protocol.NewMessageWithID(event, id, payload))
	return nil
}

func (c *fakeConn) deliver(msg *protocol.Message) {
	c.mu.Lock()
	var fns []socket.Listener
	for _, fn := range c.listeners[msg.Type] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (c *fakeConn) reconnected() {
	c.mu.Lock()
	var fns []func()
	for _, fn := range c.reconnect {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeConn) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.reconnect)
	for _, fns := range c.listeners {
		n += len(fns)
	}
	return n
}

func (c *fakeConn) lastEmitted() *protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.emitted) == 0 {
		return nil
	}
	return c.emitted[len(c.emitted)-1]
}

// broadcast delivers one relay broadcast to every connection
func broadcast(msg *protocol.Message, conns ...*fakeConn) {
	for _, c := range conns {
		c.deliver(msg)
	}
}

// reply builds a broadcast answering the emitted message with correlation id
func reply(id, event string, payload interface{}) *protocol.Message {
	return protocol.NewReply(&protocol.Message{ID: id}, event, payload)
}

type fakeFetcher struct {
	mu       sync.Mutex
	posts    []protocol.Post
	thread   func() []*protocol.Comment
	// onFetch runs after the snapshot is taken and before it is returned
	onFetch  func()
	err      error
	calls    int
	lastType string
	lastUser string
}

func (f *fakeFetcher) Feed(_ context.Context, feedType string, limit, offset int) (*api.FeedResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastType = feedType
	resp := &api.FeedResponse{Type: feedType, Posts: append([]protocol.Post(nil), f.posts...)}
	hook, err := f.onFetch, f.err
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *fakeFetcher) UserPosts(_ context.Context, userID string, limit, offset int) (*api.FeedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastUser = userID
	var posts []protocol.Post
	for _, p := range f.posts {
		if p.UserID == userID {
			posts = append(posts, p)
		}
	}
	return &api.FeedResponse{Posts: posts}, nil
}

func (f *fakeFetcher) Comments(_ context.Context, postID string) ([]*protocol.Comment, error) {
	f.mu.Lock()
	f.calls++
	var thread []*protocol.Comment
	if f.thread != nil {
		thread = f.thread()
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return thread, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func post(id, userID string, likes int64, age time.Duration) protocol.Post {
	return protocol.Post{
		ID:        id,
		UserID:    userID,
		Content:   "content of " + id,
		Likes:     likes,
		CreatedAt: epoch.Add(-age),
	}
}

func comment(id, postID string, parentID *string, replies ...*protocol.Comment) *protocol.Comment {
	return &protocol.Comment{
		ID:        id,
		PostID:    postID,
		UserID:    "author-" + id,
		Content:   "comment " + id,
		ParentID:  parentID,
		CreatedAt: epoch,
		Replies:   replies,
	}
}

func ptr(s string) *string {
	return &s
}
