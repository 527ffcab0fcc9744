package memory

import (
	"context"
	"sort"
	"sync"

	"econ-clock/internal/storage"
)

// FeedStateStore is an in-memory implementation of storage.FeedStateStore.
type FeedStateStore struct {
	mu     sync.RWMutex
	states map[string]storage.FeedState
}

// NewFeedStateStore creates a new in-memory feed state store.
func NewFeedStateStore() *FeedStateStore {
	return &FeedStateStore{
		states: make(map[string]storage.FeedState),
	}
}

// Get returns the state of a feed.
func (s *FeedStateStore) Get(_ context.Context, url string) (*storage.FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[url]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &st, nil
}

// Set saves the state of a feed.
func (s *FeedStateStore) Set(_ context.Context, state *storage.FeedState) error {
	if state == nil || state.URL == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.URL] = *state
	return nil
}

// List returns every known feed state ordered by URL.
func (s *FeedStateStore) List(_ context.Context) ([]*storage.FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.FeedState, 0, len(s.states))
	for _, st := range s.states {
		stCopy := st
		result = append(result, &stCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].URL < result[j].URL
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FeedStateStore = (*FeedStateStore)(nil)
