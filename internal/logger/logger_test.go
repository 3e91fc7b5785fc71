package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" ERROR ", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// withBuffer swaps the global logger for one writing to a buffer.
func withBuffer(t *testing.T, level string, json bool) *bytes.Buffer {
	t.Helper()
	prev := current.Load()
	var buf bytes.Buffer
	current.Store(New(&buf, level, json))
	t.Cleanup(func() { current.Store(prev) })
	return &buf
}

func TestGet_LazyDefault(t *testing.T) {
	prev := current.Swap(nil)
	t.Cleanup(func() { current.Store(prev) })

	first := Get()
	if first == nil {
		t.Fatal("Get() should return a logger")
	}
	if Get() != first {
		t.Error("Get() should return the same logger instance")
	}
}

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", true)

	log.Info("hidden")
	log.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON warn record, got %q", out)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger should not be enabled for errors")
	}
}

func TestWithComponent(t *testing.T) {
	buf := withBuffer(t, "info", false)

	WithComponent("cache").Info("swept")
	if !strings.Contains(buf.String(), "component=cache") {
		t.Errorf("component label missing: %q", buf.String())
	}
}

func TestContextFunctions_AttachRequestID(t *testing.T) {
	buf := withBuffer(t, "debug", false)
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")

	tests := []struct {
		name string
		log  func(context.Context, string, ...any)
	}{
		{"info", InfoContext},
		{"warn", WarnContext},
		{"error", ErrorContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log(ctx, tt.name+" message")
			out := buf.String()
			if !strings.Contains(out, tt.name+" message") || !strings.Contains(out, "request_id=req-42") {
				t.Errorf("unexpected output %q", out)
			}
		})
	}
}

func TestRequestIDSurvivesWith(t *testing.T) {
	buf := withBuffer(t, "info", true)
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-7")

	WithComponent("api").InfoContext(ctx, "handled")
	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Errorf("derived logger lost request id: %q", buf.String())
	}

	buf.Reset()
	Info("no context")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("request id should only come from context: %q", buf.String())
	}
}
