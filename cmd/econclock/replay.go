package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"econ-clock/internal/clock"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/lifecycle"
	"econ-clock/internal/marker"
	"econ-clock/internal/orchestrator"
	"econ-clock/internal/replay"
	"econ-clock/internal/storage/memory"
	"econ-clock/internal/timeresolve"
)

func replayCmd() *cobra.Command {
	var (
		from     string
		to       string
		step     time.Duration
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Step the clock face across a time range and print each published frame",
		Long: `Replay drives a session over a simulated clock and writes one JSON
frame per line. Without --from/--to it replays today in the viewer timezone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if timezone == "" {
				timezone = cfg.Timezone
			}
			if _, err := timeresolve.Location(timezone); err != nil {
				return fmt.Errorf("timezone %q: %w", timezone, err)
			}

			start, end := timeresolve.DayBounds(timezone, time.Now().UnixMilli())
			if from != "" {
				if start, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
			}
			if to != "" {
				if end, err = time.Parse(time.RFC3339, to); err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
			}

			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			clk := clock.NewManual(start.UnixMilli())
			adapter := eventcache.NewAdapter(eventcache.Options{
				Hot:    memory.NewHotCache(cfg.Cache.HotTTL, clk.Clock()),
				Source: b.source,
				Clock:  clk.Clock(),
				Logger: log,
			})
			session := orchestrator.New(orchestrator.Options{
				Adapter: adapter,
				Engine: marker.NewEngine(marker.Options{
					WindowMinutes: cfg.Engine.WindowMinutes,
					NowWindowMs:   cfg.Engine.NowWindow.Milliseconds(),
					Logger:        log,
				}),
				Tracker: lifecycle.NewTracker(lifecycle.Options{
					ExitAnimation: cfg.Engine.ExitAnimation,
					Grace:         cfg.Engine.Grace,
				}),
				Clock: clk.Clock(),
				Settings: orchestrator.Settings{
					Timezone:      timezone,
					Filters:       cfg.Session.Filters,
					FavoritesOnly: cfg.Session.FavoritesOnly,
				},
				Logger: log,
			})

			enc := json.NewEncoder(os.Stdout)
			n, err := replay.NewRunner(session, clk).Run(ctx, start.UnixMilli(), end.UnixMilli(), step,
				replay.SinkFunc(func(_ context.Context, f replay.Frame) error {
					return enc.Encode(f)
				}))
			if err != nil {
				return err
			}

			log.Info().
				Str("timezone", timezone).
				Time("from", start).
				Time("to", end).
				Int("frames", n).
				Msg("replay complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "range start, RFC3339 (default: start of today)")
	cmd.Flags().StringVar(&to, "to", "", "range end, RFC3339 (default: end of today)")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "simulated time between ticks")
	cmd.Flags().StringVar(&timezone, "tz", "", "viewer timezone (default: configured)")
	return cmd
}
