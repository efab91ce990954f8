package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestInitializeWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "relay.log")
	require.NoError(t, Initialize("debug", file))
	t.Cleanup(func() { _ = Initialize("error", "") })

	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
	Log.Info("hello")
	assert.FileExists(t, file)
}

func TestInitializeConsoleOnly(t *testing.T) {
	require.NoError(t, Initialize("error", ""))
	assert.False(t, Log.Core().Enabled(zapcore.InfoLevel))
}
