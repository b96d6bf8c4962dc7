package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/docloader/internal/ingestion/cost"
)

var (
	estimateUnits   float64
	estimateModel   string
	estimatePeriod  time.Duration
	estimateRegions int
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Project cost units onto the pricing models",
	Run:   runEstimate,
}

func init() {
	estimateCmd.Flags().Float64Var(&estimateUnits, "units", 0, "cost units consumed over the period")
	estimateCmd.Flags().StringVar(&estimateModel, "model", "", "serverless, provisioned or autoscale (default: compare all)")
	estimateCmd.Flags().DurationVar(&estimatePeriod, "period", 0, "override pricing.period")
	estimateCmd.Flags().IntVar(&estimateRegions, "regions", 0, "override pricing.regions")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	params := cfg.PricingParams()
	if estimatePeriod > 0 {
		params.Period = estimatePeriod
	}
	if estimateRegions > 0 {
		params.Regions = estimateRegions
	}

	if estimateModel != "" {
		model, err := cost.ParseModel(estimateModel)
		if err != nil {
			slog.Error("Invalid model", "error", err)
			os.Exit(1)
		}
		est, err := cost.EstimateCost(model, estimateUnits, params)
		if err != nil {
			slog.Error("Failed to estimate cost", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s: $%.4f\n  %s\n", est.Model, est.Cost, est.Breakdown)
		return
	}

	cmp, err := cost.Compare(estimateUnits, params)
	if err != nil {
		slog.Error("Failed to compare models", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "MODEL\tCOST\tBREAKDOWN")
	for _, est := range cmp.Estimates {
		_, _ = fmt.Fprintf(w, "%s\t$%.4f\t%s\n", est.Model, est.Cost, est.Breakdown)
	}
	_ = w.Flush()
	fmt.Printf("\nRecommendation: %s\n", cmp.Rationale)
}
