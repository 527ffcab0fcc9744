package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"econ-clock/internal/feed"
	"econ-clock/internal/storage"
)

func syncCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import an ICS feed into the configured event store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Source.ICSURL
			}
			if url == "" {
				return errors.New("--url is required when source.ics_url is unset")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()
			if b.store == nil {
				return errors.New("configured source is read-only; choose postgres, clickhouse or memory")
			}

			src := feed.NewICSSource(url, feed.WithLogger(log))
			events, err := src.Events(ctx)
			if err != nil {
				return err
			}
			if err := b.store.Upsert(ctx, events); err != nil {
				return err
			}

			state := &storage.FeedState{
				URL:        url,
				FetchedAt:  time.Now().UnixMilli(),
				EventCount: len(events),
			}
			if err := b.feeds.Set(ctx, state); err != nil {
				log.Warn().Err(err).Msg("save feed state")
			}

			log.Info().Int("events", len(events)).Str("store", b.store.Name()).Msg("feed imported")
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "ICS feed URL (default: source.ics_url)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall import timeout")
	return cmd
}
