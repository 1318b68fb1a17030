package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cadence/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsOverSparseFile(t *testing.T) {
	path := writeConfig(t, `
[catalog]
base_url = "https://catalog.example.com/"
api_key = "secret"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = (%q, %v), want (%q, true)", resolved, exists, path)
	}

	if cfg.Catalog.BaseURL != "https://catalog.example.com" {
		t.Fatalf("base url not normalized: %q", cfg.Catalog.BaseURL)
	}
	if cfg.Downloads.Format != "mp3" {
		t.Fatalf("default format = %q, want mp3", cfg.Downloads.Format)
	}
	if cfg.Jobs.MaxJobs != 25 || cfg.Jobs.MaxLogsPerJob != 100 || cfg.Jobs.MaxGlobalLogs != 1000 {
		t.Fatalf("job defaults not applied: %+v", cfg.Jobs)
	}
	if cfg.JobTimeout() != time.Hour {
		t.Fatalf("JobTimeout = %s, want 1h", cfg.JobTimeout())
	}
	if cfg.RetryBackoff() != 2*time.Second {
		t.Fatalf("RetryBackoff = %s, want 2s", cfg.RetryBackoff())
	}
	if !filepath.IsAbs(cfg.Paths.StagingDir) {
		t.Fatalf("staging dir not expanded: %q", cfg.Paths.StagingDir)
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
[downloads]
format = "flac"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "catalog.base_url") {
		t.Fatalf("err = %v, want base_url requirement", err)
	}
}

func TestLoadRejectsBadFormat(t *testing.T) {
	path := writeConfig(t, `
[catalog]
base_url = "https://catalog.example.com"

[downloads]
format = "aiff"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "downloads.format") {
		t.Fatalf("err = %v, want unsupported format rejection", err)
	}
}

func TestIsSupportedFormat(t *testing.T) {
	for _, format := range []string{"mp3", "flac", "  OPUS  "} {
		if !config.IsSupportedFormat(format) {
			t.Fatalf("IsSupportedFormat(%q) = false", format)
		}
	}
	for _, format := range []string{"", "exe", "aiff"} {
		if config.IsSupportedFormat(format) {
			t.Fatalf("IsSupportedFormat(%q) = true", format)
		}
	}
}

func TestLoadRejectsBadLogging(t *testing.T) {
	path := writeConfig(t, `
[catalog]
base_url = "https://catalog.example.com"

[logging]
level = "verbose"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("err = %v, want logging level rejection", err)
	}
}

func TestLoadRejectsNonHTTPBaseURL(t *testing.T) {
	path := writeConfig(t, `
[catalog]
base_url = "catalog.example.com"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "http(s)") {
		t.Fatalf("err = %v, want http(s) requirement", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	for _, section := range []string{"[paths]", "[catalog]", "[downloads]", "[jobs]", "[normalize]", "[logging]"} {
		if !strings.Contains(string(raw), section) {
			t.Fatalf("sample missing section %s", section)
		}
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := config.ExpandPath("~/music")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "music") {
		t.Fatalf("ExpandPath = %q, want %q", got, filepath.Join(home, "music"))
	}
}
