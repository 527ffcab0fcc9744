package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"econ-clock/internal/config"
	"econ-clock/internal/domain"
	"econ-clock/internal/feed"
	"econ-clock/internal/storage"
	chstore "econ-clock/internal/storage/clickhouse"
	"econ-clock/internal/storage/memory"
	pgstore "econ-clock/internal/storage/postgres"
)

// backend is the authoritative source selected by config.
type backend struct {
	source storage.EventSource
	store  storage.EventStore // nil for read-only sources
	feeds  storage.FeedStateStore
	ics    *feed.ICSSource // set for ICS sources
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	b := &backend{close: func() {}}

	switch cfg.Source.Kind {
	case domain.SourceKindPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store := pgstore.NewEventStore(pool)
		b.source, b.store = store, store
		b.feeds = pgstore.NewFeedStateStore(pool)
		b.close = pool.Close

	case domain.SourceKindClickHouse:
		conn, err := chstore.NewConn(ctx, cfg.Source.ClickhouseDSN)
		if err != nil {
			return nil, err
		}
		store := chstore.NewEventStore(conn)
		b.source, b.store = store, store
		b.feeds = memory.NewFeedStateStore()
		b.close = func() { _ = conn.Close() }

	case domain.SourceKindICS:
		b.feeds = memory.NewFeedStateStore()
		b.ics = feed.NewICSSource(cfg.Source.ICSURL,
			feed.WithRefresh(cfg.Source.ICSRefresh),
			feed.WithStateStore(b.feeds),
			feed.WithLogger(log),
		)
		b.source = b.ics

	case domain.SourceKindMemory:
		store := memory.NewEventStore()
		b.source, b.store = store, store
		b.feeds = memory.NewFeedStateStore()

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	log.Info().Str("source", b.source.Name()).Msg("event source ready")
	return b, nil
}
