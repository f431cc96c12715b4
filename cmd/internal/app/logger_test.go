package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// NewLogger swaps the slog default, so these tests do not run in parallel.
func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", "json", &buf)

	log.Info("dropped")
	log.Warn("auth.login.fail", "user_id", "u1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "auth.login.fail" || rec["user_id"] != "u1" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("debug", "pretty", &buf).Debug("db.migrate.current", "schema", "hearth")

	out := buf.String()
	if !strings.Contains(out, "DEBUG db.migrate.current") || !strings.Contains(out, "schema=hearth") {
		t.Fatalf("out = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("buffer output must not be coloured: %q", out)
	}
}
