package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNew_WritesInfoFile(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.log")

	l, err := New(LogConfig{Level: "info", ConsoleLevel: "error", InfoFile: infoPath})
	require.NoError(t, err)

	l.Infow("bucket scored", "score", -0.12)
	l.Debugw("hidden at info level")
	_ = l.Sync() // stderr sync may fail with EINVAL under test runners

	b, err := os.ReadFile(infoPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "bucket scored")
	assert.NotContains(t, string(b), "hidden at info level")
}

func TestL_InitializesLazily(t *testing.T) {
	logger = nil
	assert.NotNil(t, L())
}
