package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/whispers-app/whispers/internal/config"
	"github.com/whispers-app/whispers/internal/database"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/seed"
)

func main() {
	seedValue := flag.Uint64("seed", 0, "random seed (0 picks one)")
	flag.Usage = func() {
		fmt.Println("Usage: seed [-seed N] [dev|test|clean]")
		fmt.Println("  dev   - Seed development database with realistic data")
		fmt.Println("  test  - Seed database with minimal data")
		fmt.Println("  clean - Remove all rows (use with caution)")
	}
	flag.Parse()

	command := "dev"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	var counts seed.Counts
	switch command {
	case "dev":
		counts = seed.DevCounts
	case "test":
		counts = seed.TestCounts
	case "clean":
	default:
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	_ = logger.Initialize(cfg.LogLevel, "")
	defer logger.Close()

	db, err := database.Open(database.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL})
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Migration failed", err)
	}

	ctx := context.Background()
	seeder := seed.NewSeeder(db, *seedValue)

	if command == "clean" {
		if err := seeder.Clean(ctx); err != nil {
			logger.FatalWithFields("Clean failed", err)
		}
		logger.Log.Info("Database cleaned")
		return
	}

	result, err := seeder.Seed(ctx, counts)
	if err != nil {
		logger.FatalWithFields("Seeding failed", err)
	}
	logger.Log.Info("Database seeded",
		zap.String("mode", command),
		zap.Int("profiles", len(result.Profiles)),
		zap.Int("posts", len(result.Posts)),
		zap.Int("comments", len(result.Comments)),
		zap.Int("likes", result.Likes))
}
