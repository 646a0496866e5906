package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{name: "JSON output mode", jsonOutput: true, verbosity: VerbosityInfo},
		{name: "Console output mode", jsonOutput: false, verbosity: VerbosityDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityAll+3))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(VerbosityUser, OutputErrors))
	assert.False(t, ShouldOutput(VerbosityUser, OutputSessions))
	assert.True(t, ShouldOutput(VerbosityInfo, OutputSessions))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputBroadcast))
	assert.True(t, ShouldOutput(VerbosityTrace, OutputBroadcast))
	assert.False(t, ShouldOutput(VerbosityTrace, OutputCategory(999)))
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "Info (-v)", LevelName(VerbosityInfo))
	assert.Equal(t, "All (-vvvv+)", LevelName(9))
	assert.Equal(t, "Unknown", LevelName(-2))
}
