package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/whispers-app/whispers/internal/cache"
	"github.com/whispers-app/whispers/internal/config"
	"github.com/whispers-app/whispers/internal/database"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/metrics"
	"github.com/whispers-app/whispers/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("=== Whispers relay starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Bool("report_toggle_errors", cfg.ReportToggleErrors))

	metrics.Initialize()

	db, err := database.Open(database.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		Debug:  cfg.IsDevelopment() && cfg.LogLevel == "debug",
	})
	if err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional; without it the relay fans out in-process only
	var redisClient *cache.RedisClient
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.FatalWithFields("Failed to connect to Redis", err)
		}
		defer redisClient.Close()
		logger.Log.Info("Cross-process fan-out enabled", zap.String("channel", cfg.RedisChannel))
	}

	srv, err := server.New(ctx, cfg, db, redisClient)
	if err != nil {
		logger.FatalWithFields("Failed to build relay", err)
	}
	srv.Start()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.FatalWithFields("Relay stopped", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithFields("Relay forced to shutdown", err)
	}
	logger.Log.Info("Relay exited")
}
