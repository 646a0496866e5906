package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputErrors OutputCategory = iota

	// Level 1 (-v)
	OutputStartup  // Banner, config summary
	OutputSessions // Connect/subscribe/disconnect

	// Level 2 (-vv)
	OutputOperations  // Applied operations
	OutputPersistence // Storage writes

	// Level 3 (-vvv)
	OutputBroadcast // Per-session fan-out
	OutputSQL       // SQL statements

	// Level 4 (-vvvv)
	OutputDataDump // Full message bodies
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputErrors:      VerbosityUser,
	OutputStartup:     VerbosityInfo,
	OutputSessions:    VerbosityInfo,
	OutputOperations:  VerbosityDebug,
	OutputPersistence: VerbosityDebug,
	OutputBroadcast:   VerbosityTrace,
	OutputSQL:         VerbosityTrace,
	OutputDataDump:    VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}
