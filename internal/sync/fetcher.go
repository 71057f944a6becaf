package sync

import (
	"context"
	"fmt"

	"lemmy-harvester/internal/api"
)

// Lister is the slice of the API client the engine depends on.
type Lister interface {
	ListPosts(ctx context.Context, community string, page, limit int) ([]api.PostView, error)
	ListComments(ctx context.Context, community string, postID int64) ([]api.CommentView, error)
}

// Fetcher pages through one community's post listing within the configured
// page and per-page limits.
type Fetcher struct {
	client    Lister
	maxPage   int
	listLimit int
}

func NewFetcher(client Lister, maxPage, listLimit int) *Fetcher {
	return &Fetcher{
		client:    client,
		maxPage:   maxPage,
		listLimit: listLimit,
	}
}

// EachPage calls fn for every non-empty page of the community's listing,
// newest first. Pagination stops at the first empty page or after maxPage,
// whichever comes first. A page fetch failure aborts the community.
func (f *Fetcher) EachPage(ctx context.Context, community string, fn func(page int, posts []api.PostView) error) error {
	for page := 1; page <= f.maxPage; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		posts, err := f.client.ListPosts(ctx, community, page, f.listLimit)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		if len(posts) == 0 {
			return nil
		}
		if err := fn(page, posts); err != nil {
			return err
		}
	}
	return nil
}

// Comments fetches the comment tree for a single post.
func (f *Fetcher) Comments(ctx context.Context, community string, postID int64) ([]api.CommentView, error) {
	return f.client.ListComments(ctx, community, postID)
}
