// Package testsupport provides shared fixtures for package tests: per-test
// configurations backed by temp directories, and deterministic clocks and IDs
// for job store tests.
package testsupport

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cadence/internal/archive"
	"cadence/internal/config"
	"cadence/internal/jobs"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Catalog.BaseURL = "http://catalog.test"
	cfg.Catalog.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithCatalogURL points the test config at a specific catalog endpoint,
// usually an httptest server.
func WithCatalogURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Catalog.BaseURL = url
	}
}

// MustOpenArchive opens an archive store over the test config and closes it
// when the test finishes.
func MustOpenArchive(t testing.TB, cfg *config.Config) *archive.Store {
	t.Helper()
	store, err := archive.Open(cfg)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close archive: %v", err)
		}
	})
	return store
}

// FakeClock is a manually advanced clock for timeout tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at a fixed instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequenceIDs yields "job-1", "job-2", ... for stable job identifiers.
type SequenceIDs struct {
	mu   sync.Mutex
	next int
}

// NewID implements jobs.IDGenerator.
func (s *SequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return "job-" + itoa(s.next)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// NewStore builds a job store with a deterministic clock and ID sequence.
func NewStore(t testing.TB, limits jobs.Limits) (*jobs.Store, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := jobs.NewStore(limits, jobs.WithClock(clock), jobs.WithIDGenerator(&SequenceIDs{}))
	return store, clock
}
