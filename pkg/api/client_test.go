package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestFeedDecodesPostsAndMeta(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/feed", r.URL.Path)
		assert.Equal(t, "trending", r.URL.Query().Get("type"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "40", r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"type": "trending",
			"posts": [{
				"id": "p1", "user_id": "u1", "content": "hello", "image_url": null,
				"likes": 3, "comments_count": 1, "created_at": "2026-01-02T03:04:05Z",
				"profile": {"username": "QuietFox7", "avatar_seed": "seed"}
			}],
			"meta": {"limit": 20, "offset": 40, "total": 1}
		}`)
	})

	resp, err := client.Feed(context.Background(), FeedTrending, 20, 40)
	require.NoError(t, err)
	require.Len(t, resp.Posts, 1)

	post := resp.Posts[0]
	assert.Equal(t, "p1", post.ID)
	assert.Equal(t, int64(3), post.Likes)
	assert.Nil(t, post.ImageURL)
	require.NotNil(t, post.Profile)
	assert.Equal(t, "QuietFox7", post.Profile.Username)
	assert.Equal(t, Meta{Limit: 20, Offset: 40, Total: 1}, resp.Meta)
}

func TestReadsCarryViewerState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "viewer", r.Header.Get("X-User-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"posts": [{"id": "p1", "user_id": "u1", "content": "x",
			"likes": 1, "created_at": "2026-01-02T03:04:05Z", "viewer_liked": true}]}`)
	}).WithUserID("viewer")

	resp, err := client.UserPosts(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, resp.Posts, 1)
	assert.True(t, resp.Posts[0].ViewerLiked)
}

func TestCommentsDecodesNestedReplies(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/posts/p1/comments", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"post_id": "p1", "comments": [
			{"id": "c1", "post_id": "p1", "user_id": "u1", "content": "top", "parent_id": null,
			 "created_at": "2026-01-02T03:04:05Z", "likes": 0,
			 "replies": [{"id": "c2", "post_id": "p1", "user_id": "u2", "content": "reply",
			              "parent_id": "c1", "created_at": "2026-01-02T03:05:05Z", "likes": 2}]}
		]}`)
	})

	comments, err := client.Comments(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.False(t, comments[0].IsReply())
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "c2", comments[0].Replies[0].ID)
	assert.True(t, comments[0].Replies[0].IsReply())
}

func TestUpsertProfileSendsUserHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "u1", r.Header.Get("X-User-ID"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"username": "Night", "avatar_seed": ""}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "u1", "username": "Night", "avatar_seed": "u1"}`)
	})

	profile, err := client.UpsertProfile(context.Background(), "u1", "Night", "")
	require.NoError(t, err)
	assert.Equal(t, "Night", profile.Username)
	assert.Equal(t, "u1", profile.AvatarSeed)
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code": "NOT_FOUND", "message": "post not found"}`)
	})

	_, err := client.Post(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnauthorized(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "post not found", apiErr.Message)
}

func TestNonJSONErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})

	_, err := client.Feed(context.Background(), FeedLatest, 10, 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "unknown_error", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
}
