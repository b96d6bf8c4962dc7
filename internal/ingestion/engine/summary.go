package engine

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

// WriteSummary prints the human-readable run summary, including the error histogram.
func WriteSummary(w io.Writer, result *domain.InsertResult) error {
	m := result.Metrics
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "INGESTION SUMMARY")
	fmt.Fprintf(tw, "Total documents:\t%d\n", result.Total)
	fmt.Fprintf(tw, "Inserted:\t%d\n", result.Inserted)
	fmt.Fprintf(tw, "Failed:\t%d\n", result.Failed)
	fmt.Fprintf(tw, "Retried:\t%d\n", result.Retried)
	fmt.Fprintf(tw, "Total cost units:\t%.2f\n", m.TotalCost)
	fmt.Fprintf(tw, "Average cost per document:\t%.2f\n", perDocument(m.TotalCost, result.Inserted))
	fmt.Fprintf(tw, "Average latency:\t%v\n", m.AverageLatency)
	fmt.Fprintf(tw, "Peak latency:\t%v\n", m.MaxLatency)
	fmt.Fprintf(tw, "Duration:\t%v\n", m.Duration)
	fmt.Fprintf(tw, "Consumption:\t%.2f RU/s (%.2f RU/min)\n", m.CostPerSecond, m.CostPerMinute)
	if result.Recommendation.Message != "" {
		fmt.Fprintf(tw, "Recommendation:\t%s\n", result.Recommendation.Message)
	}

	if len(m.ErrorCounts) > 0 {
		fmt.Fprintln(tw, "")
		fmt.Fprintln(tw, "ERRORS\tCOUNT\tDESCRIPTION")
		for _, e := range errorHistogram(m.ErrorCounts) {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", e.code, e.count, resilience.StatusText(e.code))
		}
	}

	return tw.Flush()
}

type errorCount struct {
	code  string
	count int
}

// errorHistogram orders codes by descending frequency, then by code.
func errorHistogram(counts map[string]int) []errorCount {
	out := make([]errorCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, errorCount{code: code, count: n})
	}
	slices.SortFunc(out, func(a, b errorCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.code, b.code)
	})
	return out
}

func perDocument(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
