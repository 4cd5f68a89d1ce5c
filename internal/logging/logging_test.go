package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: "debug", Format: "json"}, "")

	l.With("callsign", "BAW123").Debug("line skipped", "line", 7)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Failed to decode log record %q: %v", buf.String(), err)
	}
	if rec["msg"] != "line skipped" {
		t.Errorf("msg = %v, want line skipped", rec["msg"])
	}
	if rec["callsign"] != "BAW123" {
		t.Errorf("callsign = %v, want BAW123", rec["callsign"])
	}
	if rec["line"] != float64(7) {
		t.Errorf("line = %v, want 7", rec["line"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: "warn", Format: "text"}, "")

	l.Debug("hidden")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output %q contains records below warn", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("output %q missing warn record", out)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.Debug("x")
	l.Debugf("x %d", 1)
	l.Info("x")
	l.Infof("x %d", 1)
	if l.With("a", 1) != nil {
		t.Error("nil Logger With() = non-nil, want nil")
	}
}

func TestNoop(t *testing.T) {
	l := Noop()
	l.Error("discarded")
	l.Warn("discarded")
	if l.Logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("Noop() logger enabled at error level")
	}
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Level: "info", Dir: dir})
	l.Info("hello")

	if l.LogFile != filepath.Join(dir, "vatsim-replay.slog") {
		t.Errorf("LogFile = %v, want file in %v", l.LogFile, dir)
	}
	data, err := os.ReadFile(l.LogFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q, want hello record", data)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_DIR", "/tmp/x")

	cfg := ConfigFromEnv()
	if cfg.Level != "debug" || cfg.Format != "text" || cfg.Dir != "/tmp/x" {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
}
