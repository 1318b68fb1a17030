package pipeline

import (
	"context"

	"cadence/internal/jobs"
)

// Track is one downloadable item resolved from a source URL.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	StreamURL   string `json:"stream_url,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// Collection describes the resolved source as a whole (a single track, an
// album, or a playlist).
type Collection struct {
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Kind       string `json:"kind"`
	TrackCount int    `json:"track_count"`
	CoverURL   string `json:"cover_url,omitempty"`
}

// ExtractUpdate is one step of the extractor's lazy item sequence. Track is nil
// when the item was skipped, in which case SkipReason says why.
type ExtractUpdate struct {
	Current    int
	Total      int
	Track      *Track
	SkipReason string
}

// ResolveRequest carries everything the extractor needs for one source.
type ResolveRequest struct {
	SourceURL string
	// Limit caps the number of items yielded; zero means no cap.
	Limit int
	Token *jobs.Token
}

// Extractor resolves a source URL into a finite sequence of tracks, yielding
// one update per item. It must poll the token between items and return
// jobs.ErrCancelled when it fires. The sequence is restartable per call.
type Extractor interface {
	Resolve(ctx context.Context, req ResolveRequest, yield func(ExtractUpdate)) (*Collection, error)
}

// Outcome tags the per-item download result.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// DownloadResult is the tagged per-item result of a fetch. Per-item failures
// are captured here, never raised; only cancellation surfaces as an error.
type DownloadResult struct {
	Track   Track   `json:"track"`
	Outcome Outcome `json:"outcome"`
	Path    string  `json:"path,omitempty"`
	Err     string  `json:"error,omitempty"`
}

// FetchRequest carries everything the downloader needs for one track.
type FetchRequest struct {
	Track  Track
	Format string
	Token  *jobs.Token
	// Progress receives byte-level progress while the track streams in.
	Progress func(done, total int64)
}

// Downloader fetches one track's content into the library. Retryable transport
// failures are returned as errors tagged with the services markers so the
// pipeline's retry executor can classify them; the returned error is otherwise
// reserved for cancellation.
type Downloader interface {
	Fetch(ctx context.Context, req FetchRequest) (DownloadResult, error)
}

// Composer generates collection artifacts (playlist file, cover image) over the
// completed result set. Failures are downgraded to warnings by the pipeline.
type Composer interface {
	Compose(ctx context.Context, result *Result) error
}

// Normalizer applies loudness normalization to the downloaded files. Failures
// are downgraded to warnings by the pipeline.
type Normalizer interface {
	Normalize(ctx context.Context, result *Result) error
}

// Result accumulates everything a job produced. Phases that completed before a
// failure leave their partial results in place.
type Result struct {
	Collection     *Collection
	Tracks         []Track
	SkippedExtract int
	Downloads      []DownloadResult
	Downloaded     int
	Skipped        int
	FailedItems    int
	PlaylistPath   string
	CoverPath      string
}
