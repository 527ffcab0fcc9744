package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"econ-clock/internal/domain"
	"econ-clock/internal/storage/migrations"
	pgstore "econ-clock/internal/storage/postgres"
)

func migrateCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			kind := cfg.Source.Kind
			if target != "" {
				kind = domain.SourceKind(strings.ToLower(target))
			}

			switch kind {
			case domain.SourceKindPostgres:
				pool, err := pgstore.NewPool(ctx, cfg.Source.PostgresDSN)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				log.Info().Strs("applied", applied).Msg("postgres migrations applied")

			case domain.SourceKindClickHouse:
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Source.ClickhouseDSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				log.Info().Msg("clickhouse migrations applied")

			default:
				return fmt.Errorf("source %q has no migrations", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "postgres or clickhouse (default: configured source)")
	return cmd
}
