package build

// Stats tracks job totals for one driver run, mirrored into the run-history
// ledger's builddb.RunStats at the end of the run.
type Stats struct {
	NumTotal    int
	NumFinished int
	NumFailed   int
}

// BuildUI is the interface for displaying job-pool progress. Implementations
// are stdout (default) or an optional ncurses dashboard.
type BuildUI interface {
	// Start initializes the UI (e.g. sets up the ncurses screen). A no-op
	// for the stdout implementation.
	Start() error

	// Stop cleanly shuts down the UI (e.g. restores the terminal).
	Stop()

	// UpdateProgress reports the current Stats.
	UpdateProgress(stats Stats)

	// LogEvent logs one job-pool event ("[extract] foo done" / "[build] foo failed: <reason>").
	LogEvent(message string)
}
