package jobs

import (
	"strings"
	"time"
	"unicode"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusFetchingInfo Status = "fetching_info"
	StatusDownloading  Status = "downloading"
	StatusImporting    Status = "importing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusFetchingInfo,
	StatusDownloading,
	StatusImporting,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Label returns the human-readable form of a status ("fetching_info" ->
// "Fetching Info").
func (s Status) Label() string {
	parts := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, part := range parts {
		runes := []rune(strings.ToLower(part))
		if len(runes) == 0 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}

// Metadata is the enriched snapshot attached to a job once extraction has
// resolved its source.
type Metadata struct {
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Kind       string `json:"kind,omitempty"` // track, album, or playlist
	TrackCount int    `json:"track_count,omitempty"`
	CoverURL   string `json:"cover_url,omitempty"`
}

// Job is one unit of download work tracked by the store.
type Job struct {
	ID           string     `json:"id"`
	SourceURL    string     `json:"source_url"`
	Format       string     `json:"format"`
	Status       Status     `json:"status"`
	Progress     float64    `json:"progress"`
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Metadata     *Metadata  `json:"metadata,omitempty"`
	Current      int        `json:"current,omitempty"`
	Total        int        `json:"total,omitempty"`
}

// IsTerminal reports whether the job reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

func (j *Job) clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Metadata != nil {
		m := *j.Metadata
		cp.Metadata = &m
	}
	return &cp
}

// LogEntry is one line of a job's append-only, bounded log.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"`
}
