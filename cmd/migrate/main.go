package main

import (
	"fmt"
	"os"

	"github.com/whispers-app/whispers/internal/config"
	"github.com/whispers-app/whispers/internal/database"
	"github.com/whispers-app/whispers/internal/logger"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Create or update tables and indexes")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	_ = logger.Initialize(cfg.LogLevel, "")
	defer logger.Close()

	logger.Log.Info("Connecting to database...")
	db, err := database.Open(database.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL})
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	defer database.Close(db)

	logger.Log.Info("Running migrations...")
	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Migration failed", err)
	}
	logger.Log.Info("All migrations completed successfully")
}
