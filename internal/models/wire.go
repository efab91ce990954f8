package models

import "github.com/whispers-app/whispers/pkg/protocol"

// Wire converts the post to its broadcast / REST representation
func (p *Post) Wire() protocol.Post {
	out := protocol.Post{
		ID:            p.ID,
		UserID:        p.UserID,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		Likes:         p.Likes,
		CommentsCount: p.CommentsCount,
		CreatedAt:     p.CreatedAt,
	}
	if p.Profile != nil {
		out.Profile = &protocol.Profile{
			Username:   p.Profile.Username,
			AvatarSeed: p.Profile.AvatarSeed,
		}
	}
	return out
}

// Wire converts the comment and its replies to the wire representation
func (c *Comment) Wire() *protocol.Comment {
	out := &protocol.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Content:   c.Content,
		ParentID:  c.ParentID,
		CreatedAt: c.CreatedAt,
		Likes:     c.Likes,
	}
	for _, reply := range c.Replies {
		out.Replies = append(out.Replies, reply.Wire())
	}
	return out
}

// WirePosts converts a post list
func WirePosts(posts []*Post) []protocol.Post {
	out := make([]protocol.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Wire())
	}
	return out
}

// WireComments converts a comment tree
func WireComments(comments []*Comment) []*protocol.Comment {
	out := make([]*protocol.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.Wire())
	}
	return out
}
