package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cadence/internal/jobs"
	"cadence/internal/pipeline"
	"cadence/internal/progress"
	"cadence/internal/retry"
	"cadence/internal/services"
)

type fakeExtractor struct {
	collection *pipeline.Collection
	tracks     []pipeline.Track
	skips      []string
	err        error
}

func (f *fakeExtractor) Resolve(_ context.Context, req pipeline.ResolveRequest, yield func(pipeline.ExtractUpdate)) (*pipeline.Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	total := len(f.tracks) + len(f.skips)
	current := 0
	for i := range f.tracks {
		if err := req.Token.Err(); err != nil {
			return nil, err
		}
		current++
		yield(pipeline.ExtractUpdate{Current: current, Total: total, Track: &f.tracks[i]})
	}
	for _, reason := range f.skips {
		current++
		yield(pipeline.ExtractUpdate{Current: current, Total: total, SkipReason: reason})
	}
	return f.collection, nil
}

// fakeDownloader pops one scripted response per Fetch call; the last response
// repeats once the script runs out.
type fakeDownloader struct {
	script []func(pipeline.FetchRequest) (pipeline.DownloadResult, error)
	calls  int
}

func (f *fakeDownloader) Fetch(_ context.Context, req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx](req)
}

func done(req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
	return pipeline.DownloadResult{Track: req.Track, Outcome: pipeline.OutcomeDone, Path: "/library/" + req.Track.Title}, nil
}

func skipped(req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
	return pipeline.DownloadResult{Track: req.Track, Outcome: pipeline.OutcomeSkipped, Err: "already in archive"}, nil
}

type fakeComposer struct {
	called bool
	err    error
}

func (f *fakeComposer) Compose(context.Context, *pipeline.Result) error {
	f.called = true
	return f.err
}

type fakeNormalizer struct {
	called bool
	err    error
}

func (f *fakeNormalizer) Normalize(context.Context, *pipeline.Result) error {
	f.called = true
	return f.err
}

func collectSink(events *[]progress.Event) progress.Sink {
	return func(ev progress.Event) { *events = append(*events, ev) }
}

func testJob() *jobs.Job {
	return &jobs.Job{ID: "job-1", SourceURL: "https://example.com/album/1", Format: "mp3", Status: jobs.StatusPending, CreatedAt: time.Now().UTC()}
}

func tracks(n int) []pipeline.Track {
	out := make([]pipeline.Track, n)
	for i := range out {
		out[i] = pipeline.Track{
			ID:        fmt.Sprintf("t%d", i+1),
			Title:     fmt.Sprintf("Track %d", i+1),
			Artist:    "Artist",
			Album:     "Album",
			StreamURL: fmt.Sprintf("https://cdn.example.com/t%d", i+1),
		}
	}
	return out
}

func noRetry() *retry.Executor {
	return &retry.Executor{Sleep: func(context.Context, time.Duration) error { return nil }}
}

func TestRunHappyPath(t *testing.T) {
	composer := &fakeComposer{}
	normalizer := &fakeNormalizer{}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Artist: "Artist", Kind: "album", TrackCount: 2},
			tracks:     tracks(2),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){done}},
		Composer:   composer,
		Normalizer: normalizer,
		Retry:      noRetry(),
	}

	var events []progress.Event
	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), collectSink(&events))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Downloaded != 2 || result.FailedItems != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Collection == nil || result.Collection.Title != "Album" {
		t.Fatalf("collection missing from result: %+v", result.Collection)
	}
	if !composer.called || !normalizer.called {
		t.Fatal("compose and normalize phases must run")
	}

	// Progress never regresses and each phase stays inside its band.
	last := -1.0
	for _, ev := range events {
		if ev.Percent < last {
			t.Fatalf("progress regressed: %v after %v (phase %s)", ev.Percent, last, ev.Phase)
		}
		rng := pipeline.PhaseRange(ev.Phase)
		if ev.Percent < rng.Start || ev.Percent > rng.End {
			t.Fatalf("phase %s emitted %v outside [%v, %v]", ev.Phase, ev.Percent, rng.Start, rng.End)
		}
		last = ev.Percent
	}
	final := events[len(events)-1]
	if final.Phase != pipeline.PhaseNormalize || final.Percent != 100 {
		t.Fatalf("final event = %+v, want normalize at 100", final)
	}
}

func TestRunStreamsByteProgressWithinTrack(t *testing.T) {
	streaming := func(req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
		if req.Progress == nil {
			t.Fatal("fetch request missing byte progress callback")
		}
		req.Progress(256, 1024)
		req.Progress(512, 1024)
		return done(req)
	}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 2},
			tracks:     tracks(2),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){streaming, done}},
		Retry:      noRetry(),
	}

	var events []progress.Event
	if _, err := p.Run(context.Background(), testJob(), jobs.NewToken(), collectSink(&events)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	band := pipeline.PhaseRange(pipeline.PhaseDownload)
	firstTrackDone := band.At(1, 2)
	partials := 0
	for _, ev := range events {
		if ev.Phase != pipeline.PhaseDownload || !strings.HasPrefix(ev.Message, "downloading Track 1") {
			continue
		}
		partials++
		if ev.Percent <= band.Start || ev.Percent >= firstTrackDone {
			t.Fatalf("partial percent %v outside (%v, %v)", ev.Percent, band.Start, firstTrackDone)
		}
		if ev.Current != 0 || ev.Total != 2 {
			t.Fatalf("partial event must keep the finished-track count: %+v", ev)
		}
	}
	if partials != 2 {
		t.Fatalf("partial events = %d, want 2", partials)
	}
}

func TestRunZeroTracksFails(t *testing.T) {
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Empty", Kind: "playlist"},
			skips:      []string{"region locked", "removed"},
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){done}},
		Retry:      noRetry(),
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if !errors.Is(err, pipeline.ErrNoTracks) {
		t.Fatalf("err = %v, want ErrNoTracks", err)
	}
	if result.SkippedExtract != 2 {
		t.Fatalf("SkippedExtract = %d, want 2", result.SkippedExtract)
	}
}

func TestRunRecordsPerItemFailuresAndSucceeds(t *testing.T) {
	unavailable := func(req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
		return pipeline.DownloadResult{}, services.Wrap(services.ErrContentUnavailable, "downloader", "fetch", "removed upstream", nil)
	}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 3},
			tracks:     tracks(3),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){done, unavailable, done}},
		Retry:      noRetry(),
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if err != nil {
		t.Fatalf("one bad track must not fail the job: %v", err)
	}
	if result.Downloaded != 2 || result.FailedItems != 1 {
		t.Fatalf("unexpected result: downloaded=%d failed=%d", result.Downloaded, result.FailedItems)
	}
	if result.Downloads[1].Outcome != pipeline.OutcomeFailed || result.Downloads[1].Err == "" {
		t.Fatalf("failed item not recorded: %+v", result.Downloads[1])
	}
}

func TestRunFailsWhenEveryTrackFails(t *testing.T) {
	unavailable := func(pipeline.FetchRequest) (pipeline.DownloadResult, error) {
		return pipeline.DownloadResult{}, services.Wrap(services.ErrContentUnavailable, "downloader", "fetch", "removed upstream", nil)
	}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 2},
			tracks:     tracks(2),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){unavailable}},
		Retry:      noRetry(),
	}

	_, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if !errors.Is(err, services.ErrContentUnavailable) {
		t.Fatalf("err = %v, want content-unavailable failure", err)
	}
}

func TestRunRetriesTransientFetches(t *testing.T) {
	transient := func(pipeline.FetchRequest) (pipeline.DownloadResult, error) {
		return pipeline.DownloadResult{}, services.Wrap(services.ErrUnavailable, "downloader", "fetch", "upstream hiccup", nil)
	}
	dl := &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){transient, transient, done}}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Single", Kind: "track", TrackCount: 1},
			tracks:     tracks(1),
		},
		Downloader: dl,
		Retry: &retry.Executor{
			MaxRetries: 2,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		},
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if dl.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", dl.calls)
	}
	if result.Downloaded != 1 {
		t.Fatalf("downloaded = %d, want 1", result.Downloaded)
	}
}

func TestRunExhaustedRetriesBecomePerItemFailure(t *testing.T) {
	transient := func(pipeline.FetchRequest) (pipeline.DownloadResult, error) {
		return pipeline.DownloadResult{}, services.Wrap(services.ErrUnavailable, "downloader", "fetch", "upstream down", nil)
	}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 2},
			tracks:     tracks(2),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){transient, done}},
		Retry: &retry.Executor{
			MaxRetries: 0,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		},
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if err != nil {
		t.Fatalf("exhausted item must not fail the job while others succeed: %v", err)
	}
	if result.FailedItems != 1 || result.Downloaded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	token := jobs.NewToken()
	dl := &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){
		func(req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
			// Cancel arrives while the first track is in flight.
			token.Cancel()
			return done(req)
		},
	}}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 3},
			tracks:     tracks(3),
		},
		Downloader: dl,
		Retry:      noRetry(),
	}

	_, err := p.Run(context.Background(), testJob(), token, nil)
	if !errors.Is(err, jobs.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if dl.calls != 1 {
		t.Fatalf("fetch calls after cancel = %d, want 1", dl.calls)
	}
}

func TestRunComposeFailureIsBestEffort(t *testing.T) {
	composer := &fakeComposer{err: errors.New("disk full")}
	normalizer := &fakeNormalizer{err: errors.New("ffmpeg missing")}
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Single", Kind: "track", TrackCount: 1},
			tracks:     tracks(1),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){done}},
		Composer:   composer,
		Normalizer: normalizer,
		Retry:      noRetry(),
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if err != nil {
		t.Fatalf("best-effort phase failures must not fail the job: %v", err)
	}
	if !composer.called || !normalizer.called {
		t.Fatal("both best-effort phases must have been attempted")
	}
	if result.Downloaded != 1 {
		t.Fatalf("downloaded = %d, want 1", result.Downloaded)
	}
}

func TestRunCountsSkippedDownloads(t *testing.T) {
	p := &pipeline.Pipeline{
		Extractor: &fakeExtractor{
			collection: &pipeline.Collection{Title: "Album", Kind: "album", TrackCount: 2},
			tracks:     tracks(2),
		},
		Downloader: &fakeDownloader{script: []func(pipeline.FetchRequest) (pipeline.DownloadResult, error){skipped, done}},
		Retry:      noRetry(),
	}

	result, err := p.Run(context.Background(), testJob(), jobs.NewToken(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Skipped != 1 || result.Downloaded != 1 {
		t.Fatalf("unexpected result: skipped=%d downloaded=%d", result.Skipped, result.Downloaded)
	}
}
