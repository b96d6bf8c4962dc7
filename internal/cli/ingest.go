package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/ingestion/engine"
)

var (
	ingestFile      string
	ingestBatchSize int
	ingestJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Insert documents from a JSON array file",
	Run:   runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "JSON file holding an array of documents")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "override ingest.batch_size")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the result as JSON")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if ingestBatchSize > 0 {
		cfg.Ingest.BatchSize = ingestBatchSize
	}

	data, err := os.ReadFile(ingestFile)
	if err != nil {
		slog.Error("Failed to read documents", "file", ingestFile, "error", err)
		os.Exit(1)
	}
	docs, err := domain.ParseDocuments(data)
	if err != nil {
		slog.Error("Failed to parse documents", "file", ingestFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newLoader(ctx, cfg)
	defer app.Close()

	slog.Info("Starting ingestion", "file", ingestFile, "documents", len(docs))
	result, ingestErr := app.Ingest(ctx, docs)
	if result != nil {
		if ingestJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
		} else if err := engine.WriteSummary(os.Stdout, result); err != nil {
			slog.Error("Failed to write summary", "error", err)
		}
	}
	if ingestErr != nil {
		slog.Error("Ingestion aborted", "error", ingestErr)
		os.Exit(1)
	}
	if result.Failed > 0 {
		os.Exit(2)
	}
}
