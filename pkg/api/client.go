// Package api is the REST client used to (re)load confirmed state from the
// relay's read endpoints.
package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/whispers-app/whispers/pkg/config"
	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Feed types accepted by /api/v1/feed
const (
	FeedTrending = "trending"
	FeedLatest   = "latest"
)

const userIDHeader = "X-User-ID"

// Meta is the pagination block of list responses
type Meta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// FeedResponse is the body of feed and user post listings
type FeedResponse struct {
	Type  string          `json:"type,omitempty"`
	Posts []protocol.Post `json:"posts"`
	Meta  Meta            `json:"meta"`
}

// ThreadResponse is the body of /posts/:id/comments
type ThreadResponse struct {
	PostID   string              `json:"post_id"`
	Comments []*protocol.Comment `json:"comments"`
}

// Profile is a stored profile
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AvatarSeed string    `json:"avatar_seed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Client talks to the REST API
type Client struct {
	http *resty.Client
}

// New creates a Client for baseURL
func New(baseURL string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "whisper-cli/0.1.0").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "elapsed", resp.Time())
		return nil
	})

	return &Client{http: httpClient}
}

// NewFromConfig creates a Client from api.base_url and api.timeout. Reads
// are made as relay.user_id when it is set.
func NewFromConfig() *Client {
	return New(config.GetString("api.base_url"), config.APITimeout()).
		WithUserID(config.GetString("relay.user_id"))
}

// WithUserID sends userID with every request so reads carry the caller's
// like state (viewer_liked)
func (c *Client) WithUserID(userID string) *Client {
	if userID != "" {
		c.http.SetHeader(userIDHeader, userID)
	}
	return c
}

// Feed retrieves a page of the trending or latest feed
func (c *Client) Feed(ctx context.Context, feedType string, limit, offset int) (*FeedResponse, error) {
	var response FeedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":   feedType,
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}).
		SetResult(&response).
		Get("/api/v1/feed")
	if err := check(resp, err, "fetch feed"); err != nil {
		return nil, err
	}
	return &response, nil
}

// UserPosts retrieves one author's posts, newest first
func (c *Client) UserPosts(ctx context.Context, userID string, limit, offset int) (*FeedResponse, error) {
	var response FeedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}).
		SetResult(&response).
		Get("/api/v1/users/{id}/posts")
	if err := check(resp, err, "fetch user posts"); err != nil {
		return nil, err
	}
	return &response, nil
}

// Post retrieves a single post
func (c *Client) Post(ctx context.Context, postID string) (*protocol.Post, error) {
	var post protocol.Post
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetResult(&post).
		Get("/api/v1/posts/{id}")
	if err := check(resp, err, "fetch post"); err != nil {
		return nil, err
	}
	return &post, nil
}

// Comments retrieves a post's comment tree
func (c *Client) Comments(ctx context.Context, postID string) ([]*protocol.Comment, error) {
	var response ThreadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetResult(&response).
		Get("/api/v1/posts/{id}/comments")
	if err := check(resp, err, "fetch comments"); err != nil {
		return nil, err
	}
	return response.Comments, nil
}

// Profile retrieves a profile
func (c *Client) Profile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&profile).
		Get("/api/v1/profiles/{id}")
	if err := check(resp, err, "fetch profile"); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or updates userID's profile. Empty fields keep the
// server's generated values.
func (c *Client) UpsertProfile(ctx context.Context, userID, username, avatarSeed string) (*Profile, error) {
	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(userIDHeader, userID).
		SetBody(map[string]string{
			"username":    username,
			"avatar_seed": avatarSeed,
		}).
		SetResult(&profile).
		Put("/api/v1/profiles/me")
	if err := check(resp, err, "upsert profile"); err != nil {
		return nil, err
	}
	return &profile, nil
}

func check(resp *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !resp.IsSuccess() {
		return ParseError(resp)
	}
	return nil
}
