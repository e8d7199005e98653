package util

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Fatalf("expected default logger")
	}
}

func TestInitLoggerWritesJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := initLogger(&buf, "info")
	ctx := ContextWithLogger(context.Background(), logger.With("request_id", "abc"))
	LoggerFromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["request_id"] != "abc" || entry["service"] != "floodwatch" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}
