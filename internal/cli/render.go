package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/whispers-app/whispers/pkg/feed"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	accent  = color.New(color.FgMagenta)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
)

func printSuccess(format string, args ...interface{}) {
	_, _ = success.Fprintf(os.Stdout, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	_, _ = failure.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func author(userID string, username string) string {
	if username != "" {
		return username
	}
	if len(userID) > 8 {
		return userID[:8]
	}
	return userID
}

func heart(liked bool) string {
	if liked {
		return "♥"
	}
	return "♡"
}

func ago(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func renderPosts(w io.Writer, posts []feed.PostView, now time.Time) {
	if len(posts) == 0 {
		_, _ = faint.Fprintln(w, "No whispers yet")
		return
	}
	for _, p := range posts {
		username := ""
		if p.Profile != nil {
			username = p.Profile.Username
		}
		_, _ = bold.Fprint(w, author(p.UserID, username))
		_, _ = faint.Fprintf(w, " · %s · %s", ago(p.CreatedAt, now), p.ID)
		if p.Pending {
			_, _ = faint.Fprint(w, " (sending)")
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "  %s\n", p.Content)
		if p.ImageURL != nil {
			_, _ = faint.Fprintf(w, "  [image] %s\n", *p.ImageURL)
		}
		_, _ = accent.Fprintf(w, "  %s %d", heart(p.Liked), p.Likes)
		_, _ = faint.Fprintf(w, "  💬 %d\n\n", p.CommentsCount)
	}
}

func renderThread(w io.Writer, comments []*feed.CommentView, now time.Time) {
	if len(comments) == 0 {
		_, _ = faint.Fprintln(w, "No comments yet")
		return
	}
	renderComments(w, comments, 0, now)
}

func renderComments(w io.Writer, comments []*feed.CommentView, depth int, now time.Time) {
	indent := strings.Repeat("  ", depth)
	for _, c := range comments {
		fmt.Fprint(w, indent)
		if depth > 0 {
			_, _ = faint.Fprint(w, "↳ ")
		}
		_, _ = bold.Fprint(w, author(c.UserID, ""))
		_, _ = faint.Fprintf(w, " · %s · %s", ago(c.CreatedAt, now), c.ID)
		if c.Pending {
			_, _ = faint.Fprint(w, " (sending)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s\n", indent, c.Content)
		_, _ = accent.Fprintf(w, "%s  %s %d\n", indent, heart(c.Liked), c.Likes)
		renderComments(w, c.Replies, depth+1, now)
	}
}

// clearScreen moves the cursor home and clears the terminal
func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
