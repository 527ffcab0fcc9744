package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"econ-clock/internal/eventcache"
	"econ-clock/internal/lifecycle"
	"econ-clock/internal/marker"
	"econ-clock/internal/orchestrator"
	"econ-clock/internal/scheduler"
	"econ-clock/internal/server"
	"econ-clock/internal/storage"
	"econ-clock/internal/storage/memory"
	"econ-clock/internal/storage/sqlite"
)

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clock session and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			hot := memory.NewHotCache(cfg.Cache.HotTTL, nil)
			var persistent storage.RangeCache
			var pcache *sqlite.Cache
			if cfg.Cache.PersistentPath != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Cache.PersistentPath), 0o700); err != nil {
					return err
				}
				pcache, err = sqlite.Open(cfg.Cache.PersistentPath, nil)
				if err != nil {
					return err
				}
				defer pcache.Close()
				persistent = pcache
			}

			adapter := eventcache.NewAdapter(eventcache.Options{
				Hot:           hot,
				Persistent:    persistent,
				PersistentTTL: cfg.Cache.PersistentTTL,
				Source:        b.source,
				Logger:        log,
			})
			annotations := memory.NewAnnotationStore(nil)

			session := orchestrator.New(orchestrator.Options{
				Adapter:     adapter,
				Annotations: annotations,
				Engine: marker.NewEngine(marker.Options{
					WindowMinutes: cfg.Engine.WindowMinutes,
					NowWindowMs:   cfg.Engine.NowWindow.Milliseconds(),
					Logger:        log,
				}),
				Tracker: lifecycle.NewTracker(lifecycle.Options{
					ExitAnimation: cfg.Engine.ExitAnimation,
					Grace:         cfg.Engine.Grace,
				}),
				Tick: cfg.Engine.Tick,
				Settings: orchestrator.Settings{
					Timezone:      cfg.Timezone,
					Filters:       cfg.Session.Filters,
					FavoritesOnly: cfg.Session.FavoritesOnly,
				},
				Logger: log,
			})

			sched := scheduler.New(log)
			if err := sched.AddJob(cfg.Scheduler.HotPurge, scheduler.NewHotPurgeJob(hot, log)); err != nil {
				return err
			}
			if pcache != nil {
				if err := sched.AddJob(cfg.Scheduler.CacheCleanup, sqlite.NewCleanupJob(pcache, log)); err != nil {
					return err
				}
			}
			if b.ics != nil {
				job := scheduler.NewFeedRefreshJob(b.ics, time.Minute, log)
				if err := sched.AddJob("@every "+cfg.Source.ICSRefresh.String(), job); err != nil {
					return err
				}
				if err := sched.RunNow(job); err != nil {
					log.Warn().Err(err).Msg("initial feed load failed")
				}
			}
			sched.Start()
			defer sched.Stop()

			srv := server.New(server.Config{
				Addr:        cfg.Listen,
				Log:         log,
				Session:     session,
				Events:      adapter,
				Annotations: annotations,
				Feeds:       b.feeds,
			})

			errCh := make(chan error, 2)
			go func() { errCh <- session.Run(ctx) }()
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			case err = <-errCh:
				log.Error().Err(err).Msg("component failed")
			}

			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Warn().Err(serr).Msg("server shutdown")
			}
			log.Info().Msg("shutdown complete")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override listen address")
	return cmd
}
