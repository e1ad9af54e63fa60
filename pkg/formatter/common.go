package formatter

import (
	"fmt"
	"time"
)

// printTimestamp prints when the run finished and how long it took.
func printTimestamp(start time.Time, duration time.Duration) {
	timeStr := start.Format("2006-01-02 15:04:05")
	durationStr := fmt.Sprintf("%.2fs", duration.Seconds())

	fmt.Printf("Completed at %s (took %s)\n", timeStr, durationStr)
}

// truncateString truncates a string to the given max length and adds "..." if necessary
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
