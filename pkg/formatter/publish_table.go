package formatter

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/layerguard/layerguard/internal/models"
)

// PrintPublishTable formats and prints the per-region publish outcomes in a table
func PrintPublishTable(results []models.PublishResult) {
	if len(results) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "REGION\tLAYER VERSION ARN\tVERSION\tSTAGED KEY\tSTATUS")

	published := 0
	for _, result := range results {
		arn := result.LayerVersionArn
		if arn == "" {
			arn = "-"
		}

		version := "-"
		if result.Version > 0 {
			version = strconv.FormatInt(result.Version, 10)
		}

		staged := result.StagedS3Key
		if staged == "" {
			staged = "-"
		}

		status := "ok"
		if result.Err != nil {
			status = truncateString(result.Err.Error(), 60)
		} else {
			published++
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			result.Region,
			arn,
			version,
			staged,
			status,
		)
	}

	fmt.Fprintf(w, "Total:\t\t\t\t%d/%d published\n", published, len(results))

	w.Flush()
}
