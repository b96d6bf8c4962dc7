package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	requeueLimit int
	requeueWatch bool
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Retry documents parked in the dead-letter queue",
	Run:   runRequeue,
}

func init() {
	requeueCmd.Flags().IntVar(&requeueLimit, "limit", 0, "max entries to process (0 = all due)")
	requeueCmd.Flags().BoolVar(&requeueWatch, "watch", false, "keep draining every requeue.interval")
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newLoader(ctx, cfg)
	defer app.Close()

	requeuer := app.Requeuer()
	if requeuer == nil {
		slog.Error("No dead-letter queue configured", "dead_letters", cfg.Ingest.DeadLetters)
		os.Exit(1)
	}

	if requeueWatch {
		if err := requeuer.Run(ctx, cfg.Requeue.Interval); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Requeue loop failed", "error", err)
			os.Exit(1)
		}
		return
	}

	stats, err := requeuer.Drain(ctx, requeueLimit)
	if err != nil {
		slog.Error("Requeue failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Resolved: %d\nFailed:   %d\nPending:  %d\n", stats.Resolved, stats.Failed, stats.Remaining)
}
