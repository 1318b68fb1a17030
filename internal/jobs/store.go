package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"cadence/internal/config"
)

// Limits bounds the registry's capacity and log retention.
type Limits struct {
	MaxJobs       int
	MaxLogsPerJob int
	MaxGlobalLogs int
	JobTimeout    time.Duration
}

// LimitsFromConfig derives registry limits from application config.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxJobs:       cfg.Jobs.MaxJobs,
		MaxLogsPerJob: cfg.Jobs.MaxLogsPerJob,
		MaxGlobalLogs: cfg.Jobs.MaxGlobalLogs,
		JobTimeout:    cfg.JobTimeout(),
	}
}

// Update carries the optional fields a caller may change on a job. Nil fields
// are left untouched.
type Update struct {
	Status       *Status
	Progress     *float64
	ErrorMessage *string
	Metadata     *Metadata
	Current      *int
	Total        *int
}

// Store is the concurrency-safe job registry. One mutex guards the job map, the
// log map, and the active-job marker together so a read-modify-write sequence is
// never interleaved with another writer. All returned jobs are snapshots.
type Store struct {
	limits Limits
	clock  Clock
	ids    IDGenerator

	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string
	logs     map[string][]LogEntry
	logCount int
	activeID string
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithClock injects a clock, used by tests to control timeout detection.
func WithClock(clock Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator injects an ID source, used by tests for stable identifiers.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// NewStore constructs an empty registry with the given limits.
func NewStore(limits Limits, opts ...Option) *Store {
	s := &Store{
		limits: limits,
		clock:  SystemClock{},
		ids:    UUIDGenerator{},
		jobs:   make(map[string]*Job),
		logs:   make(map[string][]LogEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create admits a new pending job. When the registry is full it prunes the
// single oldest terminal job; if none exists it returns ErrQueueFull and no job
// is created. shouldStart is true iff no job was active at admission time, in
// which case the new job is marked active so a concurrent Create cannot also
// claim the slot.
func (s *Store) Create(sourceURL, format string) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.limits.MaxJobs {
		if !s.pruneOldestTerminalLocked() {
			return nil, false, ErrQueueFull
		}
	}

	job := &Job{
		ID:        s.ids.NewID(),
		SourceURL: sourceURL,
		Format:    format,
		Status:    StatusPending,
		CreatedAt: s.clock.Now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	shouldStart := s.activeID == ""
	if shouldStart {
		s.activeID = job.ID
	}
	return job.clone(), shouldStart, nil
}

// Get returns a snapshot of one job, or nil when absent. Reading a non-terminal
// job performs the lazy timeout check.
func (s *Store) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	s.checkTimeoutLocked(job)
	return job.clone()
}

// List returns snapshots of all jobs in creation order, applying the lazy
// timeout check to each non-terminal job touched.
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		s.checkTimeoutLocked(job)
		out = append(out, job.clone())
	}
	return out
}

// PopNextPending returns and marks active the oldest pending job that is not
// already the active job, or nil when no candidate exists. This is the only
// queue-advancement primitive.
func (s *Store) PopNextPending() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok || job.Status != StatusPending || id == s.activeID {
			continue
		}
		s.activeID = id
		return job.clone()
	}
	return nil
}

// Cancel marks a job cancelled. It reports false when the job is absent or
// already terminal, so the first successful cancellation is the only one.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.IsTerminal() {
		return false
	}
	now := s.clock.Now()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	s.clearActiveLocked(id)
	s.appendLogLocked(job, StatusCancelled, "cancel requested")
	return true
}

// Update applies partial fields to a job. It is a no-op (returning nil) on a
// missing or already-terminal job: terminal jobs are frozen.
func (s *Store) Update(id string, upd Update) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(id, upd)
}

// Transition atomically applies an update and appends a log line under a single
// lock acquisition so no writer can interleave between the two. This is the
// preferred mutation path for pipeline progress.
func (s *Store) Transition(id string, upd Update, message string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.updateLocked(id, upd)
	if job == nil {
		return nil
	}
	if message != "" {
		if live, ok := s.jobs[id]; ok {
			s.appendLogLocked(live, live.Status, message)
		}
	}
	return job
}

// AddLog appends a log entry to a job. No-op if the job is missing or terminal.
func (s *Store) AddLog(id string, status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.IsTerminal() {
		return
	}
	s.appendLogLocked(job, status, message)
}

// Logs returns a copy of one job's log entries in append order.
func (s *Store) Logs(id string) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.logs[id]
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out
}

// GlobalLogs returns log entries across all jobs merged by timestamp.
func (s *Store) GlobalLogs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LogEntry, 0, s.logCount)
	for _, entries := range s.logs {
		out = append(out, entries...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Delete removes a job. Only terminal jobs may be deleted.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !job.IsTerminal() {
		return false
	}
	s.removeLocked(id)
	return true
}

// ClearCompleted removes all terminal jobs and returns how many were removed.
func (s *Store) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		if job, ok := s.jobs[id]; ok && job.IsTerminal() {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// ActiveID returns the identifier of the currently active job, if any.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[Status]int)
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats
}

func (s *Store) updateLocked(id string, upd Update) *Job {
	job, ok := s.jobs[id]
	if !ok || job.IsTerminal() {
		return nil
	}

	if upd.Status != nil {
		job.Status = *upd.Status
		if job.StartedAt == nil && job.Status != StatusPending && !job.IsTerminal() {
			now := s.clock.Now()
			job.StartedAt = &now
		}
	}
	if upd.Progress != nil {
		job.Progress = clampProgress(*upd.Progress)
	}
	if upd.ErrorMessage != nil {
		job.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Metadata != nil {
		m := *upd.Metadata
		job.Metadata = &m
	}
	if upd.Current != nil {
		job.Current = *upd.Current
	}
	if upd.Total != nil {
		job.Total = *upd.Total
	}

	if job.IsTerminal() {
		if job.CompletedAt == nil {
			now := s.clock.Now()
			job.CompletedAt = &now
		}
		s.clearActiveLocked(id)
	}
	return job.clone()
}

// checkTimeoutLocked force-fails a non-terminal job whose execution exceeded the
// configured timeout. Detection is lazy: a silently hung job is only marked
// failed the next time someone reads it.
func (s *Store) checkTimeoutLocked(job *Job) {
	if job.IsTerminal() || job.StartedAt == nil || s.limits.JobTimeout <= 0 {
		return
	}
	now := s.clock.Now()
	if now.Sub(*job.StartedAt) <= s.limits.JobTimeout {
		return
	}
	message := fmt.Sprintf("job timed out after %s", s.limits.JobTimeout)
	job.Status = StatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	s.clearActiveLocked(job.ID)
	s.appendLogLocked(job, StatusFailed, message)
}

func (s *Store) clearActiveLocked(id string) {
	if s.activeID == id {
		s.activeID = ""
	}
}

func (s *Store) appendLogLocked(job *Job, status Status, message string) {
	entry := LogEntry{
		Timestamp: s.clock.Now(),
		Status:    status,
		Message:   message,
		JobID:     job.ID,
	}
	entries := append(s.logs[job.ID], entry)
	s.logCount++

	if s.limits.MaxLogsPerJob > 0 && len(entries) > s.limits.MaxLogsPerJob {
		drop := len(entries) - s.limits.MaxLogsPerJob
		entries = append([]LogEntry(nil), entries[drop:]...)
		s.logCount -= drop
	}
	s.logs[job.ID] = entries

	for s.limits.MaxGlobalLogs > 0 && s.logCount > s.limits.MaxGlobalLogs {
		s.dropOldestLogLocked()
	}
}

// dropOldestLogLocked removes the single oldest entry across all jobs, merged by
// timestamp. Caps are small enough that a linear scan is fine.
func (s *Store) dropOldestLogLocked() {
	var oldestID string
	var oldest time.Time
	for id, entries := range s.logs {
		if len(entries) == 0 {
			continue
		}
		if oldestID == "" || entries[0].Timestamp.Before(oldest) {
			oldestID = id
			oldest = entries[0].Timestamp
		}
	}
	if oldestID == "" {
		s.logCount = 0
		return
	}
	s.logs[oldestID] = s.logs[oldestID][1:]
	if len(s.logs[oldestID]) == 0 {
		delete(s.logs, oldestID)
	}
	s.logCount--
}

// pruneOldestTerminalLocked deletes the oldest terminal job to make room for a
// new admission. Reports whether anything was pruned.
func (s *Store) pruneOldestTerminalLocked() bool {
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok && job.IsTerminal() {
			s.removeLocked(id)
			return true
		}
	}
	return false
}

func (s *Store) removeLocked(id string) {
	delete(s.jobs, id)
	s.logCount -= len(s.logs[id])
	delete(s.logs, id)
	for i, ordered := range s.order {
		if ordered == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func clampProgress(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
