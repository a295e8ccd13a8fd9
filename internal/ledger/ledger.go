package ledger

import (
	"context"
	"strings"

	"poolmonitor/internal/model"
)

// Ledger is the append-only store of distribution posts.
type Ledger interface {
	// Append stores post and returns its id.
	Append(ctx context.Context, post model.Post) (string, error)
	// QueryLatest returns posts of postType by author, newest first.
	QueryLatest(ctx context.Context, postType, author string) ([]model.Post, error)
}

// ResumeHeight returns the first height the next run should cover: one past
// the highest end of any distribution that paid at least one batch, or zero.
func ResumeHeight(posts []model.Post) uint64 {
	var resume uint64
	for _, post := range posts {
		dist := post.Content
		if dist.Status != model.StatusDistribution || !dist.HasSuccessfulTransfer() {
			continue
		}
		end, ok := dist.MaxEnd()
		if !ok {
			continue
		}
		if end+1 > resume {
			resume = end + 1
		}
	}
	return resume
}

// Matches reports whether post has the given type and author. Authors are
// addresses and compare case-insensitively.
func Matches(post model.Post, postType, author string) bool {
	if post.Type != postType {
		return false
	}
	return author == "" || strings.EqualFold(post.Author, author)
}
