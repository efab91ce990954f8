// Package cli implements the whisper command line client: feed and thread
// watchers plus post, like and comment commands over the relay.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/config"
	"github.com/whispers-app/whispers/pkg/logger"
)

var (
	verbose    bool
	configPath string
	asUser     string
)

var rootCmd = &cobra.Command{
	Use:   "whisper",
	Short: "Whispers CLI - anonymous posts in realtime",
	Long: `whisper talks to a Whispers relay: watch the trending or latest feed,
follow a post's comment thread as it grows, and post, like and comment
from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}
		if asUser != "" {
			config.Set("relay.user_id", asUser)
		}
		logger.Init(verbose)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/whispers/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&asUser, "user", "u", "", "User id to connect as (overrides relay.user_id)")

	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(likeCommentCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
}
