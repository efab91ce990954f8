package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/api"
	"github.com/whispers-app/whispers/pkg/feed"
	"github.com/whispers-app/whispers/pkg/logger"
)

var (
	feedType  string
	feedLimit int
	watch     bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show the trending or latest feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedType != api.FeedTrending && feedType != api.FeedLatest {
			return fmt.Errorf("--type must be %s or %s", api.FeedTrending, api.FeedLatest)
		}
		return showFeed(cmd.Context(), feed.FeedOptions{Ordering: feedType, Limit: feedLimit})
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts [user-id]",
	Short: "Show one author's posts (default: your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := feed.FeedOptions{Limit: feedLimit}
		if len(args) == 1 {
			opts.AuthorID = args[0]
		}
		return showFeed(cmd.Context(), opts)
	},
}

func showFeed(ctx context.Context, opts feed.FeedOptions) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	opts.UserID = sess.userID
	if opts.AuthorID == "" && opts.Ordering == "" {
		opts.AuthorID = sess.userID
	}
	store := feed.NewFeedStore(sess.api, opts)
	if watch {
		// subscribe before loading so nothing broadcast in between is lost
		conn, err := sess.connect(ctx)
		if err != nil {
			return err
		}
		detach := store.Attach(conn)
		defer detach()
	}
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading feed: %w", err)
	}

	if !watch {
		renderPosts(os.Stdout, store.Posts(), time.Now())
		return nil
	}
	return watchLoop(ctx, store.OnChange, func() {
		clearScreen(os.Stdout)
		renderPosts(os.Stdout, store.Posts(), time.Now())
	})
}

// watchLoop redraws on every change until interrupted
func watchLoop(ctx context.Context, onChange func(func()), draw func()) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	redraw := make(chan struct{}, 1)
	onChange(func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})

	draw()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watch stopped")
			return nil
		case <-redraw:
			draw()
		}
	}
}

func init() {
	feedCmd.Flags().StringVarP(&feedType, "type", "t", api.FeedTrending, "Feed type: trending or latest")
	for _, c := range []*cobra.Command{feedCmd, postsCmd} {
		c.Flags().IntVarP(&feedLimit, "limit", "n", feed.DefaultLimit, "Number of posts to load")
		c.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the view open and apply realtime updates")
	}
}
