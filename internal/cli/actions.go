package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whispers-app/whispers/pkg/feed"
)

var (
	imageURL     string
	unlike       bool
	replyTo      string
	threadPostID string
)

var postCmd = &cobra.Command{
	Use:   "post <content>",
	Short: "Publish a whisper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var image *string
		if imageURL != "" {
			image = &imageURL
		}
		return withFeed(cmd.Context(), func(store *feed.FeedStore) error {
			_, err := store.CreatePost(args[0], image)
			return err
		}, func() {
			printSuccess("Whisper posted")
		})
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Like (or with --unlike, unlike) a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID := args[0]
		return withFeed(cmd.Context(), func(store *feed.FeedStore) error {
			_, err := store.Like(postID, !unlike)
			return err
		}, func() {
			printSuccess("%s %s", likeVerb(!unlike), postID)
		})
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <content>",
	Short: "Comment on a post, or reply to a comment with --reply-to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parent *string
		if replyTo != "" {
			parent = &replyTo
		}
		return withThread(cmd.Context(), args[0], func(store *feed.ThreadStore) error {
			_, err := store.AddComment(args[1], parent)
			return err
		}, func() {
			if parent != nil {
				printSuccess("Replied to %s", *parent)
				return
			}
			printSuccess("Commented on %s", args[0])
		})
	},
}

var likeCommentCmd = &cobra.Command{
	Use:   "like-comment <comment-id>",
	Short: "Like (or with --unlike, unlike) a comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID := args[0]
		return withThread(cmd.Context(), threadPostID, func(store *feed.ThreadStore) error {
			_, err := store.LikeComment(commentID, !unlike)
			return err
		}, func() {
			printSuccess("%s %s", likeVerb(!unlike), commentID)
		})
	},
}

func likeVerb(liked bool) string {
	if liked {
		return "Liked"
	}
	return "Unliked"
}

// withFeed runs one optimistic feed action and waits for the relay to answer it
func withFeed(ctx context.Context, act func(*feed.FeedStore) error, done func()) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	conn, err := sess.connect(ctx)
	if err != nil {
		return err
	}
	store := feed.NewFeedStore(sess.api, feed.FeedOptions{UserID: sess.userID})
	detach := store.Attach(conn)
	defer detach()

	s := newSettle()
	store.OnChange(s.onChange)
	store.OnError(s.onError)

	if err := act(store); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	if err := s.wait(ctx, store.PendingCount); err != nil {
		return err
	}
	done()
	return nil
}

// withThread is withFeed for a post's comment thread
func withThread(ctx context.Context, postID string, act func(*feed.ThreadStore) error, done func()) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	conn, err := sess.connect(ctx)
	if err != nil {
		return err
	}
	store := feed.NewThreadStore(sess.api, postID, sess.userID)
	detach := store.Attach(conn)
	defer detach()

	s := newSettle()
	store.OnChange(s.onChange)
	store.OnError(s.onError)

	if err := act(store); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	if err := s.wait(ctx, store.PendingCount); err != nil {
		return err
	}
	done()
	return nil
}

func init() {
	postCmd.Flags().StringVar(&imageURL, "image", "", "Image URL to attach")
	likeCmd.Flags().BoolVar(&unlike, "unlike", false, "Remove the like instead")
	likeCommentCmd.Flags().BoolVar(&unlike, "unlike", false, "Remove the like instead")
	commentCmd.Flags().StringVar(&replyTo, "reply-to", "", "Comment id to reply to")
	likeCommentCmd.Flags().StringVar(&threadPostID, "post", "", "Post the comment belongs to")
	_ = likeCommentCmd.MarkFlagRequired("post")
}
