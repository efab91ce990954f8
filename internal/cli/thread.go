package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/feed"
)

var threadCmd = &cobra.Command{
	Use:   "thread <post-id>",
	Short: "Show a post's comment thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showThread(cmd.Context(), args[0])
	},
}

func showThread(ctx context.Context, postID string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	post, err := sess.api.Post(ctx, postID)
	if err != nil {
		return fmt.Errorf("loading post: %w", err)
	}
	store := feed.NewThreadStore(sess.api, postID, sess.userID)
	if watch {
		conn, err := sess.connect(ctx)
		if err != nil {
			return err
		}
		detach := store.Attach(conn)
		defer detach()
	}
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading comments: %w", err)
	}

	draw := func() {
		renderPosts(os.Stdout, []feed.PostView{{Post: *post}}, time.Now())
		renderThread(os.Stdout, store.Comments(), time.Now())
	}
	if !watch {
		draw()
		return nil
	}
	return watchLoop(ctx, store.OnChange, func() {
		clearScreen(os.Stdout)
		draw()
	})
}

func init() {
	threadCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the view open and apply realtime updates")
}
