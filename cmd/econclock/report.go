package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"econ-clock/internal/eventcache"
	"econ-clock/internal/reporting"
)

func reportCmd() *cobra.Command {
	var (
		at       string
		timezone string
		format   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the day's agenda as Markdown or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "md" && format != "csv" {
				return fmt.Errorf("--format must be md or csv, got %q", format)
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if timezone == "" {
				timezone = cfg.Timezone
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
			gen := reporting.NewGenerator(adapter, nil, nil, log)
			r, err := gen.Generate(ctx, timezone, now.UnixMilli(), cfg.Session.Filters)
			if err != nil {
				return err
			}

			var out string
			if format == "csv" {
				if out, err = reporting.RenderCSV(r); err != nil {
					return fmt.Errorf("render csv: %w", err)
				}
			} else {
				out = reporting.RenderMarkdown(r)
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprint(os.Stdout, out)
				return err
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			log.Info().Str("path", output).Str("day", r.Day).Int("events", r.Summary.Total).Msg("report written")
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "report the day containing this RFC3339 instant")
	cmd.Flags().StringVar(&timezone, "tz", "", "report timezone (default: configured)")
	cmd.Flags().StringVar(&format, "format", "md", "output format: md or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}
