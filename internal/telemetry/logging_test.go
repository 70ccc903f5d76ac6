package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesRedactedJSON(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("engine spawned",
		"password", "3f2a1c9e-aaaa-bbbb-cccc-0123456789ab",
		"port", 4141,
	)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(raw)
	if strings.Contains(line, "3f2a1c9e") {
		t.Fatalf("password leaked into log: %s", line)
	}
	if !strings.Contains(line, "[REDACTED]") {
		t.Fatalf("expected redaction marker: %s", line)
	}
	if !strings.Contains(line, `"timestamp"`) {
		t.Fatalf("expected timestamp key: %s", line)
	}
	if !strings.Contains(line, `"port":4141`) {
		t.Fatalf("benign attr missing: %s", line)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug").String() != "DEBUG" {
		t.Fatal("debug level")
	}
	if parseLevel("bogus").String() != "INFO" {
		t.Fatal("default should be info")
	}
}
