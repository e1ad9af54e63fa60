package formatter

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/layerguard/layerguard/internal/models"
)

// PrintPreflightTable displays the caller identity and the simulated
// decision for each required action
func PrintPreflightTable(report models.PreflightReport) {
	fmt.Printf("Account: %s\n", report.AccountID)
	fmt.Printf("Caller:  %s\n", report.CallerArn)

	if len(report.Decisions) > 0 {
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

		fmt.Fprintln(w, "ACTION\tDECISION")
		for _, decision := range report.Decisions {
			fmt.Fprintf(w, "%s\t%s\n", decision.Action, decision.Decision)
		}

		w.Flush()
	}

	for _, warning := range report.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}

	if len(report.Decisions) == 0 {
		return
	}

	if report.AllAllowed() {
		fmt.Println("\nAll required actions are allowed.")
	} else {
		fmt.Println("\nSome required actions are denied; a scan or publish may fail.")
	}
}
