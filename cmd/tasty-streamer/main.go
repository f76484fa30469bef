// cmd/tasty-streamer/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/configloader"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/shutdown"
	"github.com/YaganovValera/tasty-streamer/internal/app"
	"github.com/YaganovValera/tasty-streamer/internal/config"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tasty-streamer",
		Short:         "Relay tastytrade account and market events",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream account and quote events to Kafka or the log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.ServiceVersion == "" {
				cfg.ServiceVersion = version
				cfg.Telemetry.ServiceVersion = version
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()
			configloader.LogConfig(log, cfg)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go shutdown.WaitForSignals(ctx, cancel, log)

			log.Info("starting service",
				zap.String("service.name", cfg.ServiceName),
				zap.String("service.version", cfg.ServiceVersion),
			)
			if err := app.Run(ctx, cfg, log); err != nil {
				log.Error("application exited with error", zap.Error(err))
				return err
			}
			log.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML config file (optional)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// loadEnv applies a dotenv file without overriding the real environment.
// A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
