package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/whispers-app/whispers/internal/database"
	"github.com/whispers-app/whispers/internal/models"
	"github.com/whispers-app/whispers/internal/repository"
	"github.com/whispers-app/whispers/pkg/protocol"
)

type HandlersTestSuite struct {
	suite.Suite
	db     *gorm.DB
	store  repository.Store
	router *gin.Engine
	ctx    context.Context
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func (s *HandlersTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	db := database.OpenTest(s.T())
	s.db = db
	s.store = repository.NewStore(db)
	s.ctx = context.Background()

	h := NewHandlers(s.store, db, nil)
	s.router = gin.New()
	s.router.GET("/health", h.Health)
	s.router.GET("/feed", h.GetFeed)
	s.router.GET("/posts/:id", h.GetPost)
	s.router.GET("/posts/:id/comments", h.GetComments)
	s.router.GET("/users/:id/posts", h.GetUserPosts)
	s.router.GET("/profiles/:id", h.GetProfile)
	s.router.PUT("/profiles/me", h.UpsertMyProfile)
}

func (s *HandlersTestSuite) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlersTestSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *HandlersTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)

	var body map[string]interface{}
	s.decode(w, &body)
	s.Equal("healthy", body["status"])
	s.NotContains(body, "redis")
}

func (s *HandlersTestSuite) TestHealthReportsUnavailableDatabase() {
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	s.Require().NoError(sqlDB.Close())

	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	s.decode(w, &body)
	s.Equal("SERVICE_UNAVAILABLE", body["code"])
	s.Equal("database is temporarily unavailable", body["message"])
}

func (s *HandlersTestSuite) TestReadsMarkWhatTheViewerLiked() {
	liked, err := s.store.CreatePost(s.ctx, "u1", "liked", nil)
	s.Require().NoError(err)
	other, err := s.store.CreatePost(s.ctx, "u1", "other", nil)
	s.Require().NoError(err)
	comment, err := s.store.CreateComment(s.ctx, liked.ID, "u1", "c", nil)
	s.Require().NoError(err)
	reply, err := s.store.CreateComment(s.ctx, liked.ID, "u2", "r", &comment.ID)
	s.Require().NoError(err)

	_, err = s.store.SetPostLike(s.ctx, liked.ID, "viewer", true)
	s.Require().NoError(err)
	_, err = s.store.SetPostLike(s.ctx, other.ID, "u2", true)
	s.Require().NoError(err)
	_, err = s.store.SetCommentLike(s.ctx, reply.ID, "viewer", true)
	s.Require().NoError(err)

	asViewer := map[string]string{"X-User-ID": "viewer"}

	var feed struct {
		Posts []protocol.Post `json:"posts"`
	}
	s.decode(s.do(http.MethodGet, "/feed?type=latest", "", asViewer), &feed)
	s.Require().Len(feed.Posts, 2)
	for _, p := range feed.Posts {
		s.Equal(p.ID == liked.ID, p.ViewerLiked, p.Content)
	}

	var post protocol.Post
	s.decode(s.do(http.MethodGet, "/posts/"+liked.ID, "", asViewer), &post)
	s.True(post.ViewerLiked)

	var thread struct {
		Comments []*protocol.Comment `json:"comments"`
	}
	s.decode(s.do(http.MethodGet, "/posts/"+liked.ID+"/comments", "", asViewer), &thread)
	s.Require().Len(thread.Comments, 1)
	s.False(thread.Comments[0].ViewerLiked)
	s.Require().Len(thread.Comments[0].Replies, 1)
	s.True(thread.Comments[0].Replies[0].ViewerLiked)

	// anonymous reads carry no viewer state
	var anonymous protocol.Post
	s.decode(s.do(http.MethodGet, "/posts/"+liked.ID, "", nil), &anonymous)
	s.False(anonymous.ViewerLiked)
}

func (s *HandlersTestSuite) TestFeedOrdering() {
	first, err := s.store.CreatePost(s.ctx, "u1", "first", nil)
	s.Require().NoError(err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.store.CreatePost(s.ctx, "u2", "second", nil)
	s.Require().NoError(err)
	_, err = s.store.SetPostLike(s.ctx, first.ID, "u3", true)
	s.Require().NoError(err)

	var latest struct {
		Posts []protocol.Post `json:"posts"`
		Meta  struct {
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"meta"`
	}
	w := s.do(http.MethodGet, "/feed?type=latest&limit=10", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &latest)
	s.Require().Len(latest.Posts, 2)
	s.Equal(second.ID, latest.Posts[0].ID)
	s.Equal(10, latest.Meta.Limit)
	s.Equal(2, latest.Meta.Total)

	var trending struct {
		Posts []protocol.Post `json:"posts"`
	}
	w = s.do(http.MethodGet, "/feed?type=trending", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &trending)
	s.Require().Len(trending.Posts, 1)
	s.Equal(first.ID, trending.Posts[0].ID)
	s.Equal(int64(1), trending.Posts[0].Likes)
}

func (s *HandlersTestSuite) TestFeedValidation() {
	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodGet, "/feed?type=hot", "", nil).Code)
	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodGet, "/feed?limit=abc", "", nil).Code)
}

func (s *HandlersTestSuite) TestGetPost() {
	_, err := s.store.UpsertProfile(s.ctx, &models.Profile{ID: "u1", Username: "SecretGhost3"})
	s.Require().NoError(err)
	post, err := s.store.CreatePost(s.ctx, "u1", "hello", nil)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/posts/"+post.ID, "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var got protocol.Post
	s.decode(w, &got)
	s.Equal("hello", got.Content)
	s.Require().NotNil(got.Profile)
	s.Equal("SecretGhost3", got.Profile.Username)

	w = s.do(http.MethodGet, "/posts/missing", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	var apiErr map[string]string
	s.decode(w, &apiErr)
	s.Equal("NOT_FOUND", apiErr["code"])
}

func (s *HandlersTestSuite) TestGetCommentsTree() {
	post, err := s.store.CreatePost(s.ctx, "u1", "thread", nil)
	s.Require().NoError(err)
	top, err := s.store.CreateComment(s.ctx, post.ID, "u2", "top", nil)
	s.Require().NoError(err)
	_, err = s.store.CreateComment(s.ctx, post.ID, "u3", "reply", &top.ID)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/posts/"+post.ID+"/comments", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var body struct {
		Comments []*protocol.Comment `json:"comments"`
	}
	s.decode(w, &body)
	s.Require().Len(body.Comments, 1)
	s.Require().Len(body.Comments[0].Replies, 1)
	s.Equal("reply", body.Comments[0].Replies[0].Content)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/posts/missing/comments", "", nil).Code)
}

func (s *HandlersTestSuite) TestGetUserPosts() {
	_, err := s.store.CreatePost(s.ctx, "u1", "mine", nil)
	s.Require().NoError(err)
	_, err = s.store.CreatePost(s.ctx, "u2", "theirs", nil)
	s.Require().NoError(err)

	var body struct {
		Posts []protocol.Post `json:"posts"`
	}
	w := s.do(http.MethodGet, "/users/u1/posts", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &body)
	s.Require().Len(body.Posts, 1)
	s.Equal("mine", body.Posts[0].Content)
}

func (s *HandlersTestSuite) TestUpsertMyProfile() {
	w := s.do(http.MethodPut, "/profiles/me", `{"username":"MysteryEcho1"}`, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPut, "/profiles/me", `{"username":"MysteryEcho1"}`, map[string]string{"X-User-ID": "u5"})
	s.Require().Equal(http.StatusOK, w.Code)
	var profile models.Profile
	s.decode(w, &profile)
	s.Equal("u5", profile.ID)
	s.Equal("MysteryEcho1", profile.Username)

	w = s.do(http.MethodPut, "/profiles/me", "", map[string]string{"X-User-ID": "u6"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &profile)
	s.NotEmpty(profile.Username)

	w = s.do(http.MethodGet, "/profiles/u5", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/profiles/nobody", "", nil).Code)
}
