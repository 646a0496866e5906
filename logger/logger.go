package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger until Initialize() runs, so packages can log from tests
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// jsonOutput selects zap's production JSON encoder; otherwise a human-readable
// console encoder is used. verbosity follows the -v flag count (see verbosity.go).
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput
	level := VerbosityToLevel(verbosity)

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		zapLogger, err = config.Build()
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newConsoleEncoder(),
				zapcore.AddSync(os.Stdout),
				level,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// newConsoleEncoder returns a compact console encoder: short time, colored level, logger name.
func newConsoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = nil
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	return zapcore.NewConsoleEncoder(cfg)
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
