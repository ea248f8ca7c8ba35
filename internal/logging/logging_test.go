package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_StdoutOnly(t *testing.T) {
	t.Setenv("LOG_DIR", "")

	var out bytes.Buffer
	logger, closeLogger := Setup(Options{Name: "healthd", Stdout: &out})
	defer closeLogger()

	logger.Debug("hidden")
	logger.Info("keepalive_sent", "count", 3)
	if strings.Contains(out.String(), "hidden") {
		t.Fatalf("debug output without verbose: %q", out.String())
	}
	if !strings.Contains(out.String(), "keepalive_sent") {
		t.Fatalf("missing info line: %q", out.String())
	}
}

func TestSetup_FileTee(t *testing.T) {
	t.Setenv("LOG_DIR", "")

	dir := filepath.Join(t.TempDir(), "logs")
	var out bytes.Buffer
	logger, closeLogger := Setup(Options{Name: "watchdogd", Verbose: true, Stdout: &out, LogDir: dir})

	logger.Debug("keepalive", "count", 1)
	closeLogger()

	raw, err := os.ReadFile(filepath.Join(dir, "watchdogd.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "keepalive") || !strings.Contains(string(raw), "file_logging_enabled") {
		t.Fatalf("unexpected log file: %q", raw)
	}
	if !strings.Contains(out.String(), "keepalive") {
		t.Fatalf("stdout should receive the same lines: %q", out.String())
	}
}

func TestSetup_LevelVarRaisedLater(t *testing.T) {
	t.Setenv("LOG_DIR", "")

	var out bytes.Buffer
	level := new(slog.LevelVar)
	logger, closeLogger := Setup(Options{Name: "watchdogd", Stdout: &out, Level: level})
	defer closeLogger()

	logger.Debug("before_raise")
	level.Set(slog.LevelDebug)
	logger.Debug("after_raise")

	if strings.Contains(out.String(), "before_raise") {
		t.Fatalf("debug line logged at info level: %q", out.String())
	}
	if !strings.Contains(out.String(), "after_raise") {
		t.Fatalf("debug line missing after raise: %q", out.String())
	}
}
