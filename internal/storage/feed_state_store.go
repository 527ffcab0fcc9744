package storage

import "context"

// FeedState is the sync position of a remote calendar feed.
type FeedState struct {
	URL          string
	ETag         string
	LastModified string
	FetchedAt    int64 // epoch ms of the last successful fetch
	EventCount   int
}

// FeedStateStore persists feed sync state so conditional requests survive
// restarts.
type FeedStateStore interface {
	// Get returns the state of a feed. Returns ErrNotFound if never synced.
	Get(ctx context.Context, url string) (*FeedState, error)

	// Set saves the state of a feed, replacing any previous value.
	Set(ctx context.Context, state *FeedState) error

	// List returns every known feed state ordered by URL.
	List(ctx context.Context) ([]*FeedState, error)
}
