package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cadence/internal/logging"
	"cadence/internal/services"
	"cadence/internal/testsupport"
)

func consoleLogger(t *testing.T, level string) (*slog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: level, Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	return logger, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(raw)
}

func TestConsoleFormatCarriesComponentAndFields(t *testing.T) {
	base, path := consoleLogger(t, "info")
	logger := logging.NewComponentLogger(base, "executor")

	logger.Info("job completed", logging.String("job_id", "job-1"), logging.Int("tracks", 12))

	line := strings.TrimSpace(readLog(t, path))
	if !strings.Contains(line, " INFO executor: job completed") {
		t.Fatalf("line missing level/component/message: %q", line)
	}
	if !strings.Contains(line, "job_id=job-1") || !strings.Contains(line, "tracks=12") {
		t.Fatalf("line missing fields: %q", line)
	}
}

func TestConsoleQuotesAwkwardValues(t *testing.T) {
	logger, path := consoleLogger(t, "info")

	logger.Info("note", logging.String("reason", "rate limited by upstream"))

	if out := readLog(t, path); !strings.Contains(out, `reason="rate limited by upstream"`) {
		t.Fatalf("value with spaces not quoted: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, path := consoleLogger(t, "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	out := readLog(t, path)
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	logger.Info("job admitted", logging.String("job_id", "job-1"))

	raw := readLog(t, path)
	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, raw)
	}
	if record["msg"] != "job admitted" || record["level"] != "info" || record["job_id"] != "job-1" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("record missing ts")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("unknown format must be rejected")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	logger.Info("hello from the daemon")

	out := readLog(t, filepath.Join(cfg.Paths.LogDir, "cadence.log"))
	if !strings.Contains(out, "hello from the daemon") {
		t.Fatalf("log file missing line: %q", out)
	}
}

func TestWithContextDerivesFields(t *testing.T) {
	logger, path := consoleLogger(t, "info")

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithPhase(ctx, "download")
	logging.WithContext(ctx, logger).Info("streaming")

	out := readLog(t, path)
	if !strings.Contains(out, "job_id=job-1") || !strings.Contains(out, "phase=download") {
		t.Fatalf("context fields missing: %q", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Info("goes nowhere", logging.Error(nil))
}
