// Package relay implements the realtime relay events: each handler mutates the
// backing store, recomputes derived counts from source rows and broadcasts the
// result to every connected client.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/metrics"
	"github.com/whispers-app/whispers/internal/repository"
	"github.com/whispers-app/whispers/internal/websocket"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// Error is the class of relay handler failures
var Error = errs.Class("relay")

// Options configures relay behaviour
type Options struct {
	// ReportToggleErrors sends like_error / comment_like_error to the sender
	// when a like toggle fails. Failures are always logged.
	ReportToggleErrors bool
}

// Session is the connection an inbound event arrived on
type Session interface {
	Context() context.Context
	Send(message *protocol.Message) error
}

// Relay handles the four client events
type Relay struct {
	store       repository.Store
	broadcaster websocket.Broadcaster
	opts        Options
}

// New creates a Relay publishing through broadcaster
func New(store repository.Store, broadcaster websocket.Broadcaster, opts Options) *Relay {
	return &Relay{
		store:       store,
		broadcaster: broadcaster,
		opts:        opts,
	}
}

// eventFunc handles one inbound event for the session authenticated as userID
type eventFunc func(ctx context.Context, session Session, userID string, msg *protocol.Message)

// Register attaches the relay events to hub
func (r *Relay) Register(hub *websocket.Hub) {
	hub.RegisterHandler(protocol.EventCreatePost, adapt(r.CreatePost))
	hub.RegisterHandler(protocol.EventLikePost, adapt(r.LikePost))
	hub.RegisterHandler(protocol.EventCreateComment, adapt(r.CreateComment))
	hub.RegisterHandler(protocol.EventLikeComment, adapt(r.LikeComment))
}

// adapt runs fn on the client's read goroutine. Failures are handled inside
// fn, so the hub never sees an error.
func adapt(fn eventFunc) websocket.MessageHandler {
	return func(client *websocket.Client, msg *protocol.Message) error {
		fn(client.Context(), client, client.UserID, msg)
		return nil
	}
}

// CreatePost inserts a post and broadcasts it with the author's profile
func (r *Relay) CreatePost(ctx context.Context, session Session, userID string, msg *protocol.Message) {
	var in protocol.CreatePostPayload
	if err := msg.ParsePayload(&in); err != nil {
		r.reject(session, msg, protocol.EventPostError, "Failed to create post", userID, Error.Wrap(err))
		return
	}
	author := actor(in.UserID, userID)

	start := time.Now()
	post, err := r.store.CreatePost(ctx, author, in.Content, in.Image)
	observeStore("create_post", start, err)
	if err != nil {
		message := "Failed to create post"
		if errors.Is(err, repository.ErrInvalidInput) {
			message = "Post content is required"
		}
		r.reject(session, msg, protocol.EventPostError, message, author, Error.Wrap(err))
		return
	}

	r.broadcast(msg, protocol.EventNewPost, post.Wire())
	logger.Log.Debug("Broadcasting new post", logger.WithUserID(author), logger.WithPostID(post.ID))
}

// LikePost toggles the sender's like and broadcasts the recomputed count
func (r *Relay) LikePost(ctx context.Context, session Session, userID string, msg *protocol.Message) {
	var in protocol.LikePostPayload
	if err := msg.ParsePayload(&in); err != nil {
		r.toggleFailed(session, msg, protocol.EventLikeError, protocol.ToggleFailurePayload{Message: "Invalid like"}, userID, Error.Wrap(err))
		return
	}
	liker := actor(in.UserID, userID)

	start := time.Now()
	count, err := r.store.SetPostLike(ctx, in.PostID, liker, in.Liked)
	observeStore("set_post_like", start, err)
	if err != nil {
		r.toggleFailed(session, msg, protocol.EventLikeError, protocol.ToggleFailurePayload{
			PostID:  in.PostID,
			Liked:   in.Liked,
			Message: "Failed to update like",
		}, liker, Error.Wrap(err))
		return
	}

	r.broadcast(msg, protocol.EventLikeUpdate, protocol.LikeUpdatePayload{
		PostID:     in.PostID,
		LikesCount: count,
		UserID:     liker,
		Liked:      in.Liked,
	})
	logger.Log.Debug("Broadcasting like update",
		logger.WithPostID(in.PostID),
		zap.Int64("likes", count))
}

// CreateComment inserts a comment or reply and broadcasts the full record
func (r *Relay) CreateComment(ctx context.Context, session Session, userID string, msg *protocol.Message) {
	var in protocol.CreateCommentPayload
	if err := msg.ParsePayload(&in); err != nil {
		r.reject(session, msg, protocol.EventCommentError, "Failed to create comment", userID, Error.Wrap(err))
		return
	}
	author := actor(in.UserID, userID)

	start := time.Now()
	comment, err := r.store.CreateComment(ctx, in.PostID, author, in.Content, in.ParentID)
	observeStore("create_comment", start, err)
	if err != nil {
		message := "Failed to create comment"
		switch {
		case errors.Is(err, repository.ErrInvalidParent):
			message = "Parent comment does not belong to this post"
		case errors.Is(err, repository.ErrNotFound):
			message = "Post not found"
		case errors.Is(err, repository.ErrInvalidInput):
			message = "Comment content is required"
		}
		r.reject(session, msg, protocol.EventCommentError, message, author, Error.Wrap(err))
		return
	}

	r.broadcast(msg, protocol.EventNewComment, comment.Wire())
	logger.Log.Debug("Broadcasting new comment",
		logger.WithPostID(comment.PostID),
		logger.WithCommentID(comment.ID))
}

// LikeComment toggles the sender's like on a comment and broadcasts the recomputed count
func (r *Relay) LikeComment(ctx context.Context, session Session, userID string, msg *protocol.Message) {
	var in protocol.LikeCommentPayload
	if err := msg.ParsePayload(&in); err != nil {
		r.toggleFailed(session, msg, protocol.EventCommentLikeError, protocol.ToggleFailurePayload{Message: "Invalid like"}, userID, Error.Wrap(err))
		return
	}
	liker := actor(in.UserID, userID)

	start := time.Now()
	count, err := r.store.SetCommentLike(ctx, in.CommentID, liker, in.Liked)
	observeStore("set_comment_like", start, err)
	if err != nil {
		r.toggleFailed(session, msg, protocol.EventCommentLikeError, protocol.ToggleFailurePayload{
			CommentID: in.CommentID,
			Liked:     in.Liked,
			Message:   "Failed to update like",
		}, liker, Error.Wrap(err))
		return
	}

	r.broadcast(msg, protocol.EventCommentLikeUpdate, protocol.CommentLikeUpdatePayload{
		CommentID:  in.CommentID,
		LikesCount: count,
		UserID:     liker,
		Liked:      in.Liked,
	})
}

// broadcast publishes to every client, echoing the trigger's id in reply_to
func (r *Relay) broadcast(trigger *protocol.Message, event string, payload interface{}) {
	metrics.Get().RelayEventsTotal.WithLabelValues(trigger.Type, "success").Inc()
	r.broadcaster.Publish(protocol.NewReply(trigger, event, payload))
}

// reject logs err and sends a sender-only failure event
func (r *Relay) reject(session Session, trigger *protocol.Message, event, message, userID string, err error) {
	metrics.Get().RelayEventsTotal.WithLabelValues(trigger.Type, "error").Inc()
	logger.Log.Warn("Relay event failed",
		logger.WithEvent(trigger.Type),
		logger.WithUserID(userID),
		zap.Error(err))

	if sendErr := session.Send(protocol.NewReply(trigger, event, protocol.FailurePayload{Message: message})); sendErr != nil {
		logger.Log.Debug("Could not deliver failure event", logger.WithUserID(userID), zap.Error(sendErr))
	}
}

// toggleFailed logs err; the sender is told only when ReportToggleErrors is set
func (r *Relay) toggleFailed(session Session, trigger *protocol.Message, event string, payload protocol.ToggleFailurePayload, userID string, err error) {
	metrics.Get().RelayEventsTotal.WithLabelValues(trigger.Type, "error").Inc()
	logger.Log.Warn("Like toggle failed",
		logger.WithEvent(trigger.Type),
		logger.WithUserID(userID),
		zap.String("post_id", payload.PostID),
		zap.String("comment_id", payload.CommentID),
		zap.Error(err))

	if !r.opts.ReportToggleErrors {
		return
	}
	_ = session.Send(protocol.NewReply(trigger, event, payload))
}

// actor picks the acting user: the payload's userId, or the handshake identity
func actor(payloadUserID, sessionUserID string) string {
	if payloadUserID != "" {
		return payloadUserID
	}
	return sessionUserID
}

func observeStore(operation string, start time.Time, err error) {
	metrics.Get().StoreCallDuration.
		WithLabelValues(operation, metrics.Status(err)).
		Observe(time.Since(start).Seconds())
}
