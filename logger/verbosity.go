package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
//
// These levels control WHAT categories of output are shown, not just log severity.
// See output.go for the category system.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + startup, session lifecycle
	VerbosityDebug = 2 // -vv: + operations, persistence
	VerbosityTrace = 3 // -vvv: + broadcast fan-out, SQL
	VerbosityAll   = 4 // -vvvv: + full message bodies
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LevelName returns a human-readable name for verbosity level
func LevelName(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "User"
	case VerbosityInfo:
		return "Info (-v)"
	case VerbosityDebug:
		return "Debug (-vv)"
	case VerbosityTrace:
		return "Trace (-vvv)"
	case VerbosityAll:
		return "All (-vvvv)"
	default:
		if verbosity > VerbosityAll {
			return "All (-vvvv+)"
		}
		return "Unknown"
	}
}
