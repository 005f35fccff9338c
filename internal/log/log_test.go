package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", true)

	Debug("hidden")
	Info("gesture committed", "gesture", "fist", "entity", "left_hand")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if record["msg"] != "gesture committed" || record["gesture"] != "fist" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", false)

	With("component", "pipeline").Debug("started")

	if !strings.Contains(buf.String(), "component=pipeline") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}
