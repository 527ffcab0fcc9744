// Command econclock serves an economic calendar as a live clock face.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"econ-clock/internal/config"
	"econ-clock/internal/logger"
)

var configPath string

func main() {
	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".econclock", "config.yaml")

	rootCmd := &cobra.Command{
		Use:           "econclock",
		Short:         "Economic calendar clock face",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "config file path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}
