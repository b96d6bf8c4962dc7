package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document count, dead-letter depth and circuit state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx := context.Background()
	app := newLoader(ctx, cfg)
	defer app.Close()

	st, err := app.Status(ctx)
	if err != nil {
		slog.Error("Failed to read status", "error", err)
		os.Exit(1)
	}

	next := st.NextRetry
	if next == "" {
		next = "-"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COLLECTION\tDOCUMENTS\tDEAD LETTERS\tNEXT RETRY\tCIRCUIT")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		st.Collection, count(st.Documents), count(st.DeadLetters), next, st.Circuit)
	_ = w.Flush()
}

func count(n int) string {
	if n < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}
