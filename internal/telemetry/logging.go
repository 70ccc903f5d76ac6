// Package telemetry wires the process logger: structured JSON lines on
// disk, mirrored to stdout for foreground runs.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openwork/workshell/internal/shared"
)

// secretKeyHints marks attribute keys whose values never reach a sink.
// Matched as substrings of the lowercased key.
var secretKeyHints = []string{"token", "secret", "password", "authorization", "credential"}

// NewLogger opens <homeDir>/logs/system.jsonl and returns a logger that
// appends JSON lines there. Unless quiet, lines are mirrored to stdout.
// The returned closer owns the log file.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	file, err := openLogFile(homeDir)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = file
	if !quiet {
		sink = io.MultiWriter(os.Stdout, file)
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactAttr,
	})
	return slog.New(handler).With("component", "shell"), file, nil
}

func openLogFile(homeDir string) (*os.File, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logDir, "system.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// redactAttr renames the time key and scrubs credential-looking
// attributes. Worker spawns carry per-session passwords as arguments,
// so string values are checked too, not just keys.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Key = "timestamp"
	}
	if secretKey(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		if cleaned, hit := scrubValue(a.Value.String()); hit {
			return slog.String(a.Key, cleaned)
		}
	}
	return a
}

func secretKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, hint := range secretKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func scrubValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "authorization:") {
		return "[REDACTED]", true
	}
	if cleaned := shared.Redact(v); cleaned != v {
		return cleaned, true
	}
	return v, false
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
