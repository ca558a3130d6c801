package logutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	for _, in := range []string{"", "info", "DEBUG", " warn ", "warning", "error"} {
		if _, err := parseSlogLevel(in); err != nil {
			t.Fatalf("parseSlogLevel(%q) error = %v", in, err)
		}
	}
	if _, err := parseSlogLevel("loud"); err == nil {
		t.Fatalf("parseSlogLevel(loud) expected error")
	}
}

func TestLoggerRejectsUnknownFormat(t *testing.T) {
	if _, _, err := newLoggerFromConfig(loggerConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestLoggerWritesFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "spybot.log")
	var stderr bytes.Buffer
	logger, closer, err := newLoggerFromConfig(loggerConfig{Format: "json", File: path}, &stderr)
	if err != nil {
		t.Fatalf("newLoggerFromConfig() error = %v", err)
	}
	logger.Info("monitor_edit_reported", "owner_id", 42)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"monitor_edit_reported"`) {
		t.Fatalf("log file = %q", raw)
	}
	if !strings.Contains(stderr.String(), "monitor_edit_reported") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
