package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"lemmy-harvester/internal/api"
)

// SealedStore is the durable set of posts whose comments have already been
// fetched and written.
type SealedStore interface {
	IsSynced(community string, postID int64) (bool, error)
	MarkSynced(community string, postID int64) error
}

// OutputWriter routes finished records to their output files.
type OutputWriter interface {
	WritePost(community string, raw []byte) error
	WriteComments(community string, postID int64, comments []api.CommentView) error
}

// Engine runs the harvest cycle: for each configured community it pages
// through the post listing, fetches comments for posts that are old enough
// and not yet sealed, writes them out, and marks them sealed. Between
// cycles it sleeps for the configured interval.
type Engine struct {
	fetcher     *Fetcher
	store       SealedStore
	out         OutputWriter
	communities []string
	interval    time.Duration
	minAge      time.Duration

	now func() time.Time
}

func NewEngine(fetcher *Fetcher, store SealedStore, out OutputWriter, communities []string, interval, minAge time.Duration) *Engine {
	return &Engine{
		fetcher:     fetcher,
		store:       store,
		out:         out,
		communities: communities,
		interval:    interval,
		minAge:      minAge,
		now:         time.Now,
	}
}

// Run executes cycles until ctx is cancelled. The interval is measured from
// the end of one cycle to the start of the next, so a slow cycle does not
// shorten the following sleep.
func (e *Engine) Run(ctx context.Context) error {
	for {
		e.syncAll(ctx)
		if ctx.Err() != nil {
			return nil
		}

		log.Info().Dur("interval", e.interval).Msg("Cycle complete, sleeping")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.interval):
		}
	}
}

func (e *Engine) syncAll(ctx context.Context) {
	for _, community := range e.communities {
		if ctx.Err() != nil {
			return
		}
		if err := e.syncCommunity(ctx, community); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Error().Err(err).Str("community", community).Msg("Community sync failed")
		}
	}
}

// syncCommunity pages through one community. Post-level failures are
// contained inside syncPost; only page fetch failures and cancellation
// propagate, aborting this community for the current cycle.
func (e *Engine) syncCommunity(ctx context.Context, community string) error {
	return e.fetcher.EachPage(ctx, community, func(page int, posts []api.PostView) error {
		log.Debug().
			Str("community", community).
			Int("page", page).
			Int("posts", len(posts)).
			Msg("Fetched post listing page")

		for i := range posts {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.syncPost(ctx, community, &posts[i])
		}
		return nil
	})
}

// syncPost seals one post if it is eligible: old enough and not yet synced.
// Output is written before the post is marked sealed, so a crash in between
// re-fetches rather than loses data.
func (e *Engine) syncPost(ctx context.Context, community string, pv *api.PostView) {
	age := e.now().Sub(pv.Post.Published.Time)
	if age < e.minAge {
		log.Debug().
			Str("community", community).
			Int64("post", pv.Post.ID).
			Dur("age", age).
			Msg("Post too young, deferring")
		return
	}

	synced, err := e.store.IsSynced(community, pv.Post.ID)
	if err != nil {
		log.Error().Err(err).Str("community", community).Int64("post", pv.Post.ID).Msg("Failed to check synced state")
		return
	}
	if synced {
		return
	}

	comments, err := e.fetcher.Comments(ctx, community, pv.Post.ID)
	if err != nil {
		log.Warn().Err(err).
			Str("community", community).
			Int64("post", pv.Post.ID).
			Msg("Comment fetch failed, will retry next cycle")
		return
	}

	if err := e.out.WritePost(community, pv.Raw); err != nil {
		log.Error().Err(err).Str("community", community).Int64("post", pv.Post.ID).Msg("Failed to write post")
		return
	}
	if err := e.out.WriteComments(community, pv.Post.ID, comments); err != nil {
		log.Error().Err(err).Str("community", community).Int64("post", pv.Post.ID).Msg("Failed to write comments")
		return
	}
	if err := e.store.MarkSynced(community, pv.Post.ID); err != nil {
		// The data is written; next cycle re-fetches and re-appends unless
		// the mark succeeds then.
		log.Error().Err(err).Str("community", community).Int64("post", pv.Post.ID).Msg("Failed to mark post synced")
		return
	}

	log.Info().
		Str("community", community).
		Int64("post", pv.Post.ID).
		Str("title", pv.Post.Name).
		Int("comments", len(comments)).
		Msg("Sealed post")
}
