package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/docloader/internal/control"
	"github.com/vietddude/docloader/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "docloader",
	Short: "Resilient bulk document loader",
	Long: `Docloader ingests JSON documents into a document store in batches, retrying
transient failures, tracking cost units and parking failed documents for requeue.

Without a subcommand it serves /health and /metrics and drains the dead-letter queue.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file and initializes logging. A missing default
// config file falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !cmd.Flags().Changed("config") && errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			stylelog.InitDefault()
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func newLoader(ctx context.Context, cfg *config.AppConfig) *control.Loader {
	app, err := control.NewLoader(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize loader", "error", err)
		os.Exit(1)
	}
	return app
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newLoader(ctx, cfg)
	app.Start(ctx)

	if requeuer := app.Requeuer(); requeuer != nil {
		go func() {
			if err := requeuer.Run(ctx, cfg.Requeue.Interval); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Requeue loop failed", "error", err)
			}
		}()
	}

	slog.Info("Docloader started", "config", cfgPath, "port", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
