package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

func testEvent(key, currency string, impact domain.Impact, epochMs int64) domain.Event {
	return domain.Event{
		Key:      key,
		Title:    "Event " + key,
		Currency: currency,
		Impact:   impact,
		EpochMs:  epochMs,
		Source:   "memory",
	}
}

func TestEventStore_InsertAndGet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := testEvent("cpi", "USD", domain.ImpactHigh, 1704067200000)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByKey(ctx, "cpi")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got != e {
		t.Errorf("GetByKey = %+v, want %+v", got, e)
	}

	if _, err := store.GetByKey(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventStore_DuplicateKey(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := testEvent("cpi", "USD", domain.ImpactHigh, 1704067200000)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestEventStore_InsertBulkAtomic(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testEvent("b", "USD", domain.ImpactLow, 2000))

	err := store.InsertBulk(ctx, []domain.Event{
		testEvent("a", "USD", domain.ImpactLow, 1000),
		testEvent("b", "USD", domain.ImpactLow, 2000),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByKey(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed batch must not insert any event")
	}

	err = store.InsertBulk(ctx, []domain.Event{
		testEvent("x", "USD", domain.ImpactLow, 1000),
		testEvent("x", "USD", domain.ImpactLow, 1000),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestEventStore_Upsert(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := testEvent("nfp", "USD", domain.ImpactHigh, 1000)
	_ = store.Insert(ctx, e)

	e.Actual = "256K"
	if err := store.Upsert(ctx, []domain.Event{e}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, _ := store.GetByKey(ctx, "nfp")
	if got.Actual != "256K" {
		t.Errorf("Actual = %q, want 256K", got.Actual)
	}

	if err := store.Upsert(ctx, []domain.Event{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEventStore_GetByTimeRange(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []domain.Event{
		testEvent("c", "EUR", domain.ImpactLow, 3000),
		testEvent("a", "USD", domain.ImpactHigh, 1000),
		testEvent("b", "USD", domain.ImpactMedium, 2000),
		testEvent("g", domain.CurrencyGlobal, domain.ImpactHigh, 2000),
		testEvent("d", "USD", domain.ImpactHigh, 4000),
	})

	got, err := store.GetByTimeRange(ctx, 1000, 4000, domain.Filters{})
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	var keys []string
	for _, e := range got {
		keys = append(keys, e.Key)
	}
	if fmt.Sprint(keys) != "[a b g c]" {
		t.Errorf("keys = %v, want [a b g c] (end is exclusive)", keys)
	}

	got, _ = store.GetByTimeRange(ctx, 0, 5000, domain.Filters{Currencies: []string{"usd"}, Impacts: []domain.Impact{"high"}})
	keys = keys[:0]
	for _, e := range got {
		keys = append(keys, e.Key)
	}
	if fmt.Sprint(keys) != "[a g d]" {
		t.Errorf("filtered keys = %v, want [a g d]", keys)
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	if err := store.Insert(context.Background(), domain.Event{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEventStore_ConcurrentAccess(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			_ = store.Insert(ctx, testEvent(fmt.Sprintf("e%d", id), "USD", domain.ImpactLow, int64(id)))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.GetByTimeRange(ctx, 0, 100, domain.Filters{})
		}()
	}
	wg.Wait()

	got, _ := store.GetByTimeRange(ctx, 0, 100, domain.Filters{})
	if len(got) != 50 {
		t.Errorf("expected 50 events, got %d", len(got))
	}
}
