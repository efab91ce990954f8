package repository

import "github.com/whispers-app/whispers/internal/models"

// BuildThread nests a flat, creation-ordered comment list into a tree.
// Replies whose parent is not in the list are dropped.
func BuildThread(flat []*models.Comment) []*models.Comment {
	byID := make(map[string]*models.Comment, len(flat))
	for _, c := range flat {
		c.Replies = nil
		byID[c.ID] = c
	}

	roots := make([]*models.Comment, 0, len(flat))
	for _, c := range flat {
		if !c.IsReply() {
			roots = append(roots, c)
			continue
		}
		if parent, ok := byID[*c.ParentID]; ok {
			parent.Replies = append(parent.Replies, c)
		}
	}
	return roots
}
