package cli

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/whispers-app/whispers/pkg/feed"
	"github.com/whispers-app/whispers/pkg/protocol"
)

func init() {
	color.NoColor = true
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "now", ago(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m", ago(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h", ago(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d", ago(now.Add(-49*time.Hour), now))
}

func TestRenderPosts(t *testing.T) {
	now := time.Now()
	image := "https://example.com/cat.png"
	posts := []feed.PostView{
		{Post: protocol.Post{ID: "p-pending", UserID: "0123456789abcdef", Content: "hello", CreatedAt: now}, Pending: true},
		{Post: protocol.Post{
			ID: "p1", UserID: "u1", Content: "with image", ImageURL: &image, Likes: 3, CommentsCount: 2,
			CreatedAt: now.Add(-2 * time.Hour), Profile: &protocol.Profile{Username: "quiet_fox"},
		}, Liked: true},
	}

	var buf bytes.Buffer
	renderPosts(&buf, posts, now)
	out := buf.String()

	assert.Contains(t, out, "01234567 · now · p-pending (sending)")
	assert.Contains(t, out, "quiet_fox · 2h · p1")
	assert.Contains(t, out, "[image] "+image)
	assert.Contains(t, out, "♥ 3")
	assert.Contains(t, out, "💬 2")
}

func TestRenderPostsEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderPosts(&buf, nil, time.Now())
	assert.Equal(t, "No whispers yet\n", buf.String())
}

func TestRenderThreadIndentsReplies(t *testing.T) {
	now := time.Now()
	parent := "c1"
	comments := []*feed.CommentView{{
		Comment: protocol.Comment{ID: "c1", UserID: "u1", Content: "top", CreatedAt: now, Likes: 1},
		Replies: []*feed.CommentView{{
			Comment: protocol.Comment{ID: "c2", UserID: "u2", Content: "nested", ParentID: &parent, CreatedAt: now},
			Pending: true,
		}},
	}}

	var buf bytes.Buffer
	renderThread(&buf, comments, now)
	out := buf.String()

	assert.Contains(t, out, "u1 · now · c1\n  top\n  ♡ 1\n")
	assert.Contains(t, out, "  ↳ u2 · now · c2 (sending)\n    nested\n")
}

func TestSettleWaitsForPending(t *testing.T) {
	s := newSettle()
	var pending atomic.Int32
	pending.Store(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		pending.Store(0)
		s.onChange()
	}()
	assert.NoError(t, s.wait(t.Context(), func() int { return int(pending.Load()) }))
}

func TestSettleReturnsRelayError(t *testing.T) {
	s := newSettle()
	s.onError("post_error", "content is required")
	err := s.wait(t.Context(), func() int { return 1 })
	assert.EqualError(t, err, "content is required")
}
