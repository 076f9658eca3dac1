package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelDebug)

	l.Debug("worker-1", "debug message")
	l.Info("worker-1", "info message")
	l.Warn("worker-1", "warn message")
	l.Error("worker-1", "error message")

	output := buf.String()
	for _, want := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]", "[worker-1]"} {
		assert.Contains(t, output, want)
	}
}

func TestLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelWarn)

	l.Debug("", "debug message")
	l.Info("", "info message")
	l.Warn("", "warn message")
	l.Error("", "error message")

	output := buf.String()
	assert.NotContains(t, output, "[DEBUG]")
	assert.NotContains(t, output, "[INFO]")
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "[ERROR]")

	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
}

func TestLoggerSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelError)

	l.Info("", "should not appear")
	assert.NotContains(t, buf.String(), "should not appear")

	l.SetLevel(LevelInfo)
	l.Info("", "should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestLoggerSetOutput(t *testing.T) {
	first := &bytes.Buffer{}
	second := &bytes.Buffer{}
	l := New(first, LevelInfo)

	l.Info("", "one")
	l.SetOutput(second)
	l.Info("", "two")

	assert.Contains(t, first.String(), "one")
	assert.NotContains(t, first.String(), "two")
	assert.Contains(t, second.String(), "two")
}

func TestLoggerWithoutScope(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)

	l.Info("", "message without scope")

	output := buf.String()
	assert.NotContains(t, output, "[]")
	assert.Contains(t, output, "message without scope")
}

func TestLoggerFormatArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)

	l.Info("worker-1", "count: %d, name: %s", 42, "test")

	assert.Contains(t, buf.String(), "count: 42, name: test")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(LevelError))
	l.Error("", "dropped")
}

func TestLoggerConcurrentWrites(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				l.Info("", "writer %d", i)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 8*50)
}
