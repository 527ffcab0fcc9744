package memory

import (
	"context"
	"strings"
	"sync"

	"econ-clock/internal/clock"
	"econ-clock/internal/storage"
)

// AnnotationStore is an in-memory implementation of storage.AnnotationStore.
type AnnotationStore struct {
	mu    sync.RWMutex
	items map[string]storage.Annotation
	now   clock.Clock
}

var _ storage.AnnotationStore = (*AnnotationStore)(nil)

// NewAnnotationStore creates a new in-memory annotation store.
func NewAnnotationStore(now clock.Clock) *AnnotationStore {
	if now == nil {
		now = clock.System
	}
	return &AnnotationStore{
		items: make(map[string]storage.Annotation),
		now:   now,
	}
}

// SetFavorite marks or unmarks an event.
func (s *AnnotationStore) SetFavorite(_ context.Context, key string, favorite bool) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.items[key]
	a.Key = key
	a.Favorite = favorite
	s.put(a)
	return nil
}

// SetNote replaces the note of an event.
func (s *AnnotationStore) SetNote(_ context.Context, key, note string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.items[key]
	a.Key = key
	a.Note = strings.TrimSpace(note)
	s.put(a)
	return nil
}

// put stores a or drops it when empty. Caller holds mu.
func (s *AnnotationStore) put(a storage.Annotation) {
	if a.Empty() {
		delete(s.items, a.Key)
		return
	}
	a.UpdatedAt = s.now()
	s.items[a.Key] = a
}

// Get returns the annotation of an event.
func (s *AnnotationStore) Get(_ context.Context, key string) (storage.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[key]
	if !ok {
		return storage.Annotation{}, storage.ErrNotFound
	}
	return a, nil
}

// Snapshot returns a copy of every annotation.
func (s *AnnotationStore) Snapshot(_ context.Context) (map[string]storage.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]storage.Annotation, len(s.items))
	for k, a := range s.items {
		out[k] = a
	}
	return out, nil
}
