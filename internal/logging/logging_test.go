package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"invalid", LevelInfo}, // defaults to info
		{"", LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "LEVEL(9)", Level(9).String())
}

func TestLoggingOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Debug("test debug %d", 1)
	assert.Contains(t, buf.String(), "[DEBUG] test debug 1")

	buf.Reset()
	l.SetLevel(LevelWarn)
	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown %s", "warn")
	l.Error("shown %s", "error")
	out := buf.String()
	assert.Contains(t, out, "[WARN] shown warn")
	assert.Contains(t, out, "[ERROR] shown error")
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, LevelInfo)
	child := root.WithPrefix("device").WithPrefix("dial")

	child.Info("hello")
	assert.Contains(t, buf.String(), "[INFO] device.dial: hello")

	// level is shared with the parent
	root.SetLevel(LevelError)
	buf.Reset()
	child.Info("dropped")
	assert.Empty(t, buf.String())
	assert.Equal(t, LevelError, child.GetLevel())
}

func TestEnabled(t *testing.T) {
	l := New(&bytes.Buffer{}, LevelInfo)
	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))

	var nilLogger *Logger
	assert.False(t, nilLogger.Enabled(LevelError))
	// nil loggers are silent rather than panicking
	nilLogger.Error("nothing")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(LevelError))
	l.Error("nothing")
}

func TestDefaultLevelFromString(t *testing.T) {
	Default().SetLevelFromString("debug")
	assert.Equal(t, LevelDebug, Default().GetLevel())

	Default().SetLevelFromString("bogus")
	assert.Equal(t, LevelInfo, Default().GetLevel())

	assert.True(t, strings.HasPrefix(Default().GetLevel().String(), "INFO"))
}
