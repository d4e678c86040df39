package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Service: "bookings"})

	log.Info("booking created", "id", "b1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record[SERVICE] != "bookings" || record["id"] != "b1" || record["msg"] != "booking created" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Level: WARN, Format: TEXT})

	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestWith_KeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf}).With("worker", "sweeper")

	log.Info("tick")
	if !strings.Contains(buf.String(), `"worker":"sweeper"`) {
		t.Errorf("child logger lost fields: %q", buf.String())
	}
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookings.log")
	var buf bytes.Buffer
	log := New(Config{Output: &buf, File: path, MaxSizeMB: 1})

	log.Info("written twice")
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "written twice") || !strings.Contains(buf.String(), "written twice") {
		t.Errorf("record missing from file or output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		DEBUG:     slog.LevelDebug,
		INFO:      slog.LevelInfo,
		WARN:      slog.LevelWarn,
		ERROR:     slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
