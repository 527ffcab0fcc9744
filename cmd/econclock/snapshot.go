package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"econ-clock/internal/eventcache"
	"econ-clock/internal/marker"
	"econ-clock/internal/timeresolve"
)

func snapshotCmd() *cobra.Command {
	var (
		at       string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute the clock face once and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if timezone == "" {
				timezone = cfg.Timezone
			}
			if _, err := timeresolve.Location(timezone); err != nil {
				return fmt.Errorf("timezone %q: %w", timezone, err)
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}

			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			adapter := eventcache.NewAdapter(eventcache.Options{Source: b.source, Logger: log})
			res := adapter.QueryDay(ctx, timezone, now.UnixMilli(), cfg.Session.Filters)
			if res.Err != nil {
				return res.Err
			}

			engine := marker.NewEngine(marker.Options{
				WindowMinutes: cfg.Engine.WindowMinutes,
				NowWindowMs:   cfg.Engine.NowWindow.Milliseconds(),
				Logger:        log,
			})
			out := engine.Compute(marker.Input{
				Events:   res.Events,
				Timezone: timezone,
				NowMs:    now.UnixMilli(),
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC3339 instant instead of now")
	cmd.Flags().StringVar(&timezone, "tz", "", "viewer timezone (default: configured)")
	return cmd
}
