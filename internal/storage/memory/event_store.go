package memory

import (
	"context"
	"sort"
	"sync"

	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	name string
	data map[string]domain.Event // keyed by event key
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		name: "memory",
		data: make(map[string]domain.Event),
	}
}

// Name identifies the store.
func (s *EventStore) Name() string {
	return s.name
}

// Insert adds a new event. Returns ErrDuplicateKey if the key exists.
func (s *EventStore) Insert(_ context.Context, e domain.Event) error {
	if e.Key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.Key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[e.Key] = e
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.Key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, dup := seen[e.Key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.Key] = struct{}{}
	}

	for _, e := range events {
		s.data[e.Key] = e
	}
	return nil
}

// Upsert inserts or replaces events by key.
func (s *EventStore) Upsert(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		if e.Key == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.data[e.Key] = e
	}
	return nil
}

// GetByKey retrieves an event by key. Returns ErrNotFound if not exists.
func (s *EventStore) GetByKey(_ context.Context, key string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[key]
	if !exists {
		return domain.Event{}, storage.ErrNotFound
	}
	return e, nil
}

// GetByTimeRange retrieves events with start <= epoch_ms < end that pass the filter.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64, filters domain.Filters) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := filters.Normalize()
	var result []domain.Event
	for _, e := range s.data {
		if e.EpochMs >= start && e.EpochMs < end && f.Matches(e) {
			result = append(result, e)
		}
	}

	SortEvents(result)
	return result, nil
}

// SortEvents orders events by epoch ASC, key ASC.
func SortEvents(events []domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].EpochMs != events[j].EpochMs {
			return events[i].EpochMs < events[j].EpochMs
		}
		return events[i].Key < events[j].Key
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
