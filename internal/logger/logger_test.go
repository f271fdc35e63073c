package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/logger"
)

func TestModuleLoggerWritesFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	cl := logger.NewWriterLogger(buf, logger.LogLevelDebug)
	log := cl.Module("stream").Module("buffered")

	log.Debug("stream opened",
		logger.Int("handle", 3),
		logger.String("api", "buffer-queue"),
		logger.Float64("ratio", 1.23456),
		logger.Duration("timeout", time.Second))

	out := buf.String()
	assert.Contains(t, out, "stream opened")
	assert.Contains(t, out, "module=stream.buffered")
	assert.Contains(t, out, "handle=3")
	assert.Contains(t, out, "api=buffer-queue")
	assert.Contains(t, out, "ratio=1.235")
	assert.Contains(t, out, "timeout=1s")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		level  logger.LogLevel
		emit   func(logger.Logger)
		expect bool
	}{
		{"debug hidden at info", logger.LogLevelInfo, func(l logger.Logger) { l.Debug("msg") }, false},
		{"info shown at info", logger.LogLevelInfo, func(l logger.Logger) { l.Info("msg") }, true},
		{"trace hidden at debug", logger.LogLevelDebug, func(l logger.Logger) { l.Trace("msg") }, false},
		{"trace shown at trace", logger.LogLevelTrace, func(l logger.Logger) { l.Trace("msg") }, true},
		{"explicit warn at error", logger.LogLevelError, func(l logger.Logger) { l.Log(logger.LogLevelWarn, "msg") }, false},
		{"error always", logger.LogLevelError, func(l logger.Logger) { l.Error("msg") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tt.emit(logger.NewWriterLogger(buf, tt.level).Module("test"))
			assert.Equal(t, tt.expect, strings.Contains(buf.String(), "msg"))
		})
	}
}

func TestWithAndContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewWriterLogger(buf, logger.LogLevelInfo).Module("engine")

	withFields := base.With(logger.Int("handle", 1))
	ctxLogger := withFields.WithContext(logger.WithTraceID(context.Background(), "run-42"))
	ctxLogger.Info("started")
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "handle=1")
	assert.Contains(t, lines[0], "trace_id=run-42")
	assert.NotContains(t, lines[1], "handle=1")
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "audiostream.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("fifo").Warn("overrun", logger.Int64("xruns", 2), logger.Error(os.ErrClosed))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "overrun", rec["msg"])
	assert.Equal(t, "fifo", rec["module"])
	assert.InDelta(t, 2, rec["xruns"], 0)
	assert.Equal(t, os.ErrClosed.Error(), rec["error"])
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.ValidLevel("trace"))
	assert.True(t, logger.ValidLevel("warn"))
	assert.False(t, logger.ValidLevel("verbose"))
}
