// Package server assembles the relay process: REST API, relay endpoint,
// hub, fan-out and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whispers-app/whispers/internal/cache"
	"github.com/whispers-app/whispers/internal/config"
	"github.com/whispers-app/whispers/internal/handlers"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/middleware"
	"github.com/whispers-app/whispers/internal/relay"
	"github.com/whispers-app/whispers/internal/repository"
	"github.com/whispers-app/whispers/internal/websocket"
)

// Server is one relay process
type Server struct {
	cfg       *config.Config
	hub       *websocket.Hub
	wsHandler *websocket.Handler
	router    *gin.Engine
	http      *http.Server

	cancel context.CancelFunc
}

// New wires the relay. redis is optional; without it broadcasts stay in-process.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, redis *cache.RedisClient) (*Server, error) {
	ctx, cancel := context.WithCancel(ctx)

	store := repository.NewStore(db)

	hub := websocket.NewHub()
	hub.SetRateLimitConfig(websocket.RateLimitConfig{
		MaxMessagesPerSecond: cfg.WSMaxMessagesPerSecond,
		BurstSize:            cfg.WSBurst,
	})

	var broadcaster websocket.Broadcaster = hub
	if redis != nil {
		rb := websocket.NewRedisBroadcaster(redis, cfg.RedisChannel, hub)
		if err := rb.Start(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe to fan-out channel: %w", err)
		}
		broadcaster = rb
	}

	relay.New(store, broadcaster, relay.Options{
		ReportToggleErrors: cfg.ReportToggleErrors,
	}).Register(hub)

	s := &Server{
		cfg:       cfg,
		hub:       hub,
		wsHandler: websocket.NewHandler(hub),
		cancel:    cancel,
	}
	s.router = s.routes(handlers.NewHandlers(store, db, redis))
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(h *handlers.Handlers) *gin.Engine {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.MetricsMiddleware(),
	)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", websocket.UserIDHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		// upgrade requests must not pass through gzip
		ws := api.Group("/ws")
		{
			ws.GET("", s.wsHandler.HandleWebSocket)
			ws.GET("/metrics", s.wsHandler.HandleMetrics)
		}

		rest := api.Group("", gzip.Gzip(gzip.DefaultCompression))
		{
			rest.GET("/feed", h.GetFeed)

			rest.GET("/posts/:id", h.GetPost)
			rest.GET("/posts/:id/comments", h.GetComments)

			rest.GET("/users/:id/posts", h.GetUserPosts)

			rest.GET("/profiles/:id", h.GetProfile)
			rest.PUT("/profiles/me", h.UpsertMyProfile)
		}
	}

	return r
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the relay hub
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Start runs the hub loop in the background
func (s *Server) Start() {
	go s.hub.Run()
}

// ListenAndServe serves HTTP until Shutdown
func (s *Server) ListenAndServe() error {
	logger.Log.Info("Relay listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes relay connections, then drains HTTP requests
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()

	if err := s.hub.Shutdown(ctx); err != nil {
		logger.WarnWithFields("Relay hub shutdown warning", err)
	}
	return s.http.Shutdown(ctx)
}
