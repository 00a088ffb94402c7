package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		entries = append(entries, entry)
	}

	return entries
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWriterLogger(WARN, buf)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Errorf("error %d", 42)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "warn", entries[0]["message"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "error 42", entries[1]["message"])
}

func TestLogger_ChangeLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWriterLogger(INFO, buf)

	l.Debug("hidden")
	l.ChangeLevel(DEBUG)
	l.Debug("shown")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["message"])
}

func TestLogger_Caller(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWriterLogger(INFO, buf)

	l.Info("where")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0]["caller"], "logger_test.go:")
}

func TestLogger_Fatal(t *testing.T) {
	buf := &bytes.Buffer{}
	l := newLogger(INFO, buf, buf, false)

	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("boom %s", "now")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "boom now")
}

func TestLogger_PrettyPrintTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	l := newLogger(INFO, buf, buf, true)

	l.Infof("hello %s", "terminal")

	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "hello terminal")
}

func TestGetLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{" notice ", NOTICE},
		{"Warn", WARN},
		{"ERROR", ERROR},
		{"fatal", FATAL},
		{"verbose", INFO},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.want, GetLevelFromString(tc.input), "TEST[%d]: %q failed", i, tc.input)
	}
}

func TestContextLogger_TraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewWriterLogger(DEBUG, buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	l := NewContextLogger(ctx, base)
	l.Debugf("query %s", "done")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[0]["trace_id"])
	assert.Equal(t, "query done", entries[0]["message"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go:")
}

func TestContextLogger_NoSpan(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewContextLogger(context.Background(), NewWriterLogger(INFO, buf))

	l.Info("plain")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Empty(t, l.TraceID())
	assert.NotContains(t, entries[0], "trace_id")
}
