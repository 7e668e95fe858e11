package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  Error  ", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestNewStructuredLogger(t *testing.T) {
	logger := NewStructuredLogger("test", "v0.0.0", "debug")
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	logger = NewStructuredLogger("test", "v0.0.0", "error")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
}
