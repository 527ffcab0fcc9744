package postgres

import (
	"context"
	"fmt"

	"econ-clock/internal/storage"
)

// FeedStateStore is a PostgreSQL implementation of storage.FeedStateStore.
// Backed by the feed_state table, one row per feed URL.
type FeedStateStore struct {
	pool *Pool
}

// NewFeedStateStore creates a new PostgreSQL feed state store.
func NewFeedStateStore(pool *Pool) *FeedStateStore {
	return &FeedStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedStateStore = (*FeedStateStore)(nil)

// Get returns the state of a feed.
func (s *FeedStateStore) Get(ctx context.Context, url string) (*storage.FeedState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT url, etag, last_modified, fetched_at, event_count
		FROM feed_state
		WHERE url = $1
	`, url)

	var st storage.FeedState
	err := row.Scan(&st.URL, &st.ETag, &st.LastModified, &st.FetchedAt, &st.EventCount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get feed state: %w", err)
	}
	return &st, nil
}

// Set saves the state of a feed.
// Uses upsert to handle initial insert and subsequent updates.
func (s *FeedStateStore) Set(ctx context.Context, state *storage.FeedState) error {
	if state == nil || state.URL == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_state (url, etag, last_modified, fetched_at, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (url) DO UPDATE
		SET etag = EXCLUDED.etag,
		    last_modified = EXCLUDED.last_modified,
		    fetched_at = EXCLUDED.fetched_at,
		    event_count = EXCLUDED.event_count,
		    updated_at = NOW()
	`, state.URL, state.ETag, state.LastModified, state.FetchedAt, state.EventCount)
	if err != nil {
		return fmt.Errorf("set feed state: %w", err)
	}
	return nil
}

// List returns every known feed state ordered by URL.
func (s *FeedStateStore) List(ctx context.Context) ([]*storage.FeedState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT url, etag, last_modified, fetched_at, event_count
		FROM feed_state
		ORDER BY url ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list feed state: %w", err)
	}
	defer rows.Close()

	var states []*storage.FeedState
	for rows.Next() {
		var st storage.FeedState
		if err := rows.Scan(&st.URL, &st.ETag, &st.LastModified, &st.FetchedAt, &st.EventCount); err != nil {
			return nil, fmt.Errorf("scan feed state: %w", err)
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}
