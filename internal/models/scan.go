package models

// Outcome classifies what the scanner did with one function.
type Outcome string

const (
	// OutcomeProtected means the agent layer or marker variable was
	// already present and the function was left untouched.
	OutcomeProtected Outcome = "protected"
	// OutcomeAttached means the agent layer and environment variables
	// were written to the function.
	OutcomeAttached Outcome = "attached"
	// OutcomePlanned means the function passed every check but no
	// update was made because apply mode was off.
	OutcomePlanned Outcome = "planned"
	// OutcomeSkipped means a risk check failed and the function was
	// left untouched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the update call itself returned an error.
	OutcomeFailed Outcome = "failed"
)

// FunctionResult is one row of the scan report.
type FunctionResult struct {
	FunctionName string   // Function name
	Region       string   // Region scanned
	Runtime      string   // Runtime identifier
	MemoryMB     int32    // Memory allocation in MB
	TimeoutSec   int32    // Function timeout in seconds
	LayerCount   int      // Number of layers before any change
	Outcome      Outcome  // What the scanner did
	Reason       string   // Skip or failure reason, empty otherwise
	Advisories   []string // Non-blocking warnings from assessment
}

// ScanSummary aggregates per-region counts for the closing table.
type ScanSummary struct {
	Region    string // Region scanned
	Total     int    // Functions listed
	Protected int    // Already carrying the agent
	Attached  int    // Updated this run
	Planned   int    // Would be updated in apply mode
	Skipped   int    // Held back by a risk check
	Failed    int    // Update attempted and failed
}
