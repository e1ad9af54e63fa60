package formatter

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/layerguard/layerguard/internal/models"
)

// reasonCell fills the REASON column: the blocking reason when one
// exists, otherwise the advisory notes gathered during assessment.
func reasonCell(result models.FunctionResult) string {
	if result.Reason != "" {
		return result.Reason
	}
	if len(result.Advisories) > 0 {
		return "advisory: " + strings.Join(result.Advisories, "; ")
	}
	return "-"
}

// outcomeRank orders report rows so the ones needing attention come
// first.
func outcomeRank(o models.Outcome) int {
	switch o {
	case models.OutcomeFailed:
		return 0
	case models.OutcomeAttached:
		return 1
	case models.OutcomePlanned:
		return 2
	case models.OutcomeSkipped:
		return 3
	default:
		return 4
	}
}

// PrintScanTable formats and prints the per-function scan results in a table
func PrintScanTable(results []models.FunctionResult, scanTime time.Time, scanDuration time.Duration) {
	if len(results) == 0 {
		fmt.Println("No Lambda functions found.")
		return
	}

	// Sort by outcome severity, then by name for a stable report
	sorted := make([]models.FunctionResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := outcomeRank(sorted[i].Outcome), outcomeRank(sorted[j].Outcome)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].FunctionName < sorted[j].FunctionName
	})

	// Use tabwriter for aligned columns with kubectl style spacing
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "FUNCTION\tREGION\tRUNTIME\tMEMORY\tTIMEOUT\tLAYERS\tOUTCOME\tREASON")

	for _, result := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d MB\t%ds\t%d\t%s\t%s\n",
			truncateString(result.FunctionName, 50),
			result.Region,
			result.Runtime,
			result.MemoryMB,
			result.TimeoutSec,
			result.LayerCount,
			result.Outcome,
			truncateString(reasonCell(result), 60),
		)
	}

	w.Flush()

	printTimestamp(scanTime, scanDuration)
}

// PrintScanSummary displays per-region counts for the whole run
func PrintScanSummary(summaries []models.ScanSummary) {
	if len(summaries) == 0 {
		return
	}

	fmt.Println("\n## Scan Summary")

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "REGION\tTOTAL\tPROTECTED\tATTACHED\tPLANNED\tSKIPPED\tFAILED")

	var total models.ScanSummary
	for _, summary := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			summary.Region,
			summary.Total,
			summary.Protected,
			summary.Attached,
			summary.Planned,
			summary.Skipped,
			summary.Failed,
		)

		total.Total += summary.Total
		total.Protected += summary.Protected
		total.Attached += summary.Attached
		total.Planned += summary.Planned
		total.Skipped += summary.Skipped
		total.Failed += summary.Failed
	}

	if len(summaries) > 1 {
		fmt.Fprintf(w, "Total:\t%d\t%d\t%d\t%d\t%d\t%d\n",
			total.Total,
			total.Protected,
			total.Attached,
			total.Planned,
			total.Skipped,
			total.Failed,
		)
	}

	w.Flush()
}
