package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"econ-clock/internal/domain"
	"econ-clock/internal/observability"
	"econ-clock/internal/storage"
)

// HotPurgeJob drops expired hot cache entries.
type HotPurgeJob struct {
	cache storage.HotCache
	log   zerolog.Logger
}

// NewHotPurgeJob creates a hot cache purge job.
func NewHotPurgeJob(cache storage.HotCache, log zerolog.Logger) *HotPurgeJob {
	return &HotPurgeJob{cache: cache, log: log.With().Str("job", "hot_cache_purge").Logger()}
}

// Run executes the purge.
func (j *HotPurgeJob) Run() error {
	if n := j.cache.Purge(); n > 0 {
		j.log.Debug().Int("purged", n).Msg("Purged expired hot cache entries")
	}
	observability.UpdateHotEntries(j.cache.Len())
	return nil
}

// Name returns the job name.
func (j *HotPurgeJob) Name() string { return "hot_cache_purge" }

// Warmer is a source that can load its full content ahead of queries.
type Warmer interface {
	Events(ctx context.Context) ([]domain.Event, error)
}

// FeedRefreshJob keeps a remote feed warm so ticks never wait on it.
type FeedRefreshJob struct {
	feed    Warmer
	timeout time.Duration
	log     zerolog.Logger
}

// NewFeedRefreshJob creates a feed refresh job.
func NewFeedRefreshJob(feed Warmer, timeout time.Duration, log zerolog.Logger) *FeedRefreshJob {
	return &FeedRefreshJob{feed: feed, timeout: timeout, log: log.With().Str("job", "feed_refresh").Logger()}
}

// Run executes the refresh.
func (j *FeedRefreshJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	events, err := j.feed.Events(ctx)
	if err != nil {
		return err
	}
	j.log.Debug().Int("events", len(events)).Msg("Feed refreshed")
	return nil
}

// Name returns the job name.
func (j *FeedRefreshJob) Name() string { return "feed_refresh" }
