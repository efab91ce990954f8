// Package feed keeps screen-level client state in step with the relay.
//
// Every store holds two layers: confirmed state, taken from the REST API or
// from relay broadcasts, and pending deltas recorded when the local user acts.
// Views overlay the pending deltas on the confirmed state. A broadcast that
// answers a pending delta (its reply_to is the delta's correlation id) drops
// the delta; a reconnect drops all of them and reloads confirmed state.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
	"github.com/whispers-app/whispers/pkg/socket"
)

// DefaultLimit is the page size loaded into a store
const DefaultLimit = 50

const refetchTimeout = 15 * time.Second

// ErrDetached is returned by actions on a store that is not attached to a connection
var ErrDetached = errors.New("feed: store is not attached")

// Fetcher loads confirmed state
type Fetcher interface {
	Feed(ctx context.Context, feedType string, limit, offset int) (*api.FeedResponse, error)
	UserPosts(ctx context.Context, userID string, limit, offset int) (*api.FeedResponse, error)
	Comments(ctx context.Context, postID string) ([]*protocol.Comment, error)
}

// Conn is the part of a relay connection a store uses
type Conn interface {
	On(event string, fn socket.Listener) func()
	OnReconnect(fn func()) func()
	EmitWithID(id, event string, payload interface{}) error
}

// ErrorHandler receives sender-only failure notices
type ErrorHandler func(event, message string)

// base holds what every store shares: the lock, the attached connection and
// the change/error callbacks.
type base struct {
	mu       sync.Mutex
	conn     Conn
	detach   func()
	onChange func()
	onError  ErrorHandler

	// loads counts reloads in flight. Broadcasts applied meanwhile are kept in
	// replay and applied again on top of the fresh snapshot.
	loads  int
	replay []*protocol.Message
}

// OnChange sets a callback run after every state change
func (b *base) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// OnError sets the callback for post_error, comment_error and toggle errors
func (b *base) OnError(fn ErrorHandler) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// attach subscribes handlers and onReconnect on conn, replacing any earlier
// attachment, and returns a func that removes exactly those subscriptions.
func (b *base) attach(conn Conn, handlers map[string]socket.Listener, onReconnect func()) func() {
	b.mu.Lock()
	previous := b.detach
	b.mu.Unlock()
	if previous != nil {
		previous()
	}

	subs := make([]func(), 0, len(handlers)+1)
	for event, fn := range handlers {
		subs = append(subs, conn.On(event, fn))
	}
	subs = append(subs, conn.OnReconnect(onReconnect))

	var once sync.Once
	detach := func() {
		once.Do(func() {
			for _, unsubscribe := range subs {
				unsubscribe()
			}
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
				b.detach = nil
			}
			b.mu.Unlock()
		})
	}

	b.mu.Lock()
	b.conn = conn
	b.detach = detach
	b.mu.Unlock()
	return detach
}

func (b *base) beginLoad() {
	b.mu.Lock()
	b.loads++
	b.mu.Unlock()
}

func (b *base) abortLoad() {
	b.mu.Lock()
	b.endLoadLocked()
	b.mu.Unlock()
}

// endLoadLocked finishes one reload and returns the broadcasts that arrived
// while it ran; b.mu must be held
func (b *base) endLoadLocked() []*protocol.Message {
	b.loads--
	msgs := b.replay
	if b.loads == 0 {
		b.replay = nil
	}
	return msgs
}

// recordLocked keeps msg for replay when a reload is running; b.mu must be held
func (b *base) recordLocked(msg *protocol.Message) {
	if b.loads > 0 {
		b.replay = append(b.replay, msg)
	}
}

// connLocked returns the attached connection; b.mu must be held
func (b *base) connLocked() (Conn, error) {
	if b.conn == nil {
		return nil, ErrDetached
	}
	return b.conn, nil
}

func (b *base) changed() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (b *base) failed(event string, msg *protocol.Message) {
	var payload protocol.FailurePayload
	if err := msg.ParsePayload(&payload); err != nil {
		logger.Warn("Malformed failure notice", "event", event, "error", err)
	}
	logger.Warn("Relay rejected event", "event", event, "message", payload.Message)

	b.mu.Lock()
	fn := b.onError
	b.mu.Unlock()
	if fn != nil {
		fn(event, payload.Message)
	}
}

func applyLike(likes int64, currentlyLiked, liked bool) int64 {
	switch {
	case liked == currentlyLiked:
		return likes
	case liked:
		return likes + 1
	case likes > 0:
		return likes - 1
	default:
		return 0
	}
}
