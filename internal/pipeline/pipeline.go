// Package pipeline runs one job through its ordered phases: extract, download,
// compose, and optional normalize. Extract and download are core phases whose
// failure fails the job; compose and normalize are best-effort and degrade to
// logged warnings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cadence/internal/jobs"
	"cadence/internal/logging"
	"cadence/internal/progress"
	"cadence/internal/retry"
	"cadence/internal/services"
)

// ErrNoTracks is the terminal failure for a source that resolved to zero
// usable items.
var ErrNoTracks = errors.New("no tracks found for this source")

// Pipeline wires the phase collaborators together. Composer and Normalizer may
// be nil, in which case their phases are skipped.
type Pipeline struct {
	Extractor  Extractor
	Downloader Downloader
	Composer   Composer
	Normalizer Normalizer
	Retry      *retry.Executor
	Logger     *slog.Logger
	// ItemCap bounds how many tracks a single job may extract; zero means no cap.
	ItemCap int
}

// Run executes every phase for one job, emitting progress events to sink and
// polling the token cooperatively. The returned Result always reflects the
// phases that completed, even when a later phase failed.
func (p *Pipeline) Run(ctx context.Context, job *jobs.Job, token *jobs.Token, sink progress.Sink) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldJobID, job.ID))

	result := &Result{}

	if err := token.Err(); err != nil {
		return result, err
	}
	if err := p.runExtract(ctx, job, token, sink, result, logger); err != nil {
		return result, err
	}

	if err := token.Err(); err != nil {
		return result, err
	}
	if err := p.runDownload(ctx, job, token, sink, result, logger); err != nil {
		return result, err
	}

	if err := token.Err(); err != nil {
		return result, err
	}
	p.runCompose(ctx, sink, result, logger)

	if err := token.Err(); err != nil {
		return result, err
	}
	p.runNormalize(ctx, sink, result, logger)

	return result, nil
}

// runExtract resolves the source into tracks. The extractor polls the token
// per item since extraction is the longest-running phase for large inputs.
func (p *Pipeline) runExtract(ctx context.Context, job *jobs.Job, token *jobs.Token, sink progress.Sink, result *Result, logger *slog.Logger) error {
	ctx = services.WithPhase(ctx, PhaseExtract)
	emitter := progress.NewEmitter(PhaseExtract, PhaseRange(PhaseExtract), sink)
	emitter.Emit(0, 0, "resolving source", nil)

	collection, err := p.Extractor.Resolve(ctx, ResolveRequest{
		SourceURL: job.SourceURL,
		Limit:     p.ItemCap,
		Token:     token,
	}, func(upd ExtractUpdate) {
		if upd.Track != nil {
			result.Tracks = append(result.Tracks, *upd.Track)
			emitter.Emit(upd.Current, upd.Total, fmt.Sprintf("found %s", upd.Track.Title), upd.Track)
			return
		}
		result.SkippedExtract++
		emitter.Emit(upd.Current, upd.Total, fmt.Sprintf("skipped item %d: %s", upd.Current, upd.SkipReason), nil)
	})
	if err != nil {
		return err
	}
	result.Collection = collection

	if len(result.Tracks) == 0 {
		return ErrNoTracks
	}

	// The collection rides along as the payload so the store can attach the
	// metadata snapshot before downloads begin.
	emitter.Emit(len(result.Tracks), len(result.Tracks), fmt.Sprintf("resolved %d tracks", len(result.Tracks)), collection)
	logger.Info("extraction finished",
		logging.String(logging.FieldPhase, PhaseExtract),
		logging.Int("tracks", len(result.Tracks)),
		logging.Int("skipped", result.SkippedExtract),
	)
	return nil
}

// runDownload fetches each track, retrying transient transport failures per
// item. Per-item failures after retries are recorded in the result and do not
// stop the remaining tracks; the phase fails only when nothing was downloaded
// or cancellation fires.
func (p *Pipeline) runDownload(ctx context.Context, job *jobs.Job, token *jobs.Token, sink progress.Sink, result *Result, logger *slog.Logger) error {
	ctx = services.WithPhase(ctx, PhaseDownload)
	emitter := progress.NewEmitter(PhaseDownload, PhaseRange(PhaseDownload), sink)
	total := len(result.Tracks)
	emitter.Emit(0, total, fmt.Sprintf("downloading %d tracks", total), nil)

	for i, track := range result.Tracks {
		if err := token.Err(); err != nil {
			return err
		}

		var dl DownloadResult
		fetchErr := p.retryExecutor(logger).Do(ctx, fmt.Sprintf("download %q", track.Title), func(ctx context.Context) error {
			var err error
			dl, err = p.Downloader.Fetch(ctx, FetchRequest{
				Track:  track,
				Format: job.Format,
				Token:  token,
				Progress: func(done, size int64) {
					if size <= 0 {
						return
					}
					emitter.EmitPartial(i, total, float64(done)/float64(size), fmt.Sprintf("downloading %s (%d/%d)", track.Title, i+1, total))
				},
			})
			return err
		})
		if fetchErr != nil {
			if errors.Is(fetchErr, jobs.ErrCancelled) || errors.Is(fetchErr, context.Canceled) {
				return fetchErr
			}
			if errors.Is(fetchErr, services.ErrContentUnavailable) {
				dl = DownloadResult{Track: track, Outcome: OutcomeFailed, Err: fetchErr.Error()}
			} else {
				var exhausted *retry.ExhaustedError
				if !errors.As(fetchErr, &exhausted) {
					return fetchErr
				}
				dl = DownloadResult{Track: track, Outcome: OutcomeFailed, Err: exhausted.Error()}
			}
		}

		result.Downloads = append(result.Downloads, dl)
		switch dl.Outcome {
		case OutcomeDone:
			result.Downloaded++
		case OutcomeSkipped:
			result.Skipped++
		default:
			result.FailedItems++
			logger.Warn("track download failed",
				logging.String(logging.FieldPhase, PhaseDownload),
				logging.String("track", dl.Track.Title),
				logging.String("reason", dl.Err),
			)
		}

		emitter.Emit(i+1, total, downloadMessage(dl, i+1, total), &dl)
	}

	if result.Downloaded == 0 && result.FailedItems > 0 {
		return services.Wrap(services.ErrContentUnavailable, "pipeline", "download", "every track failed to download", nil)
	}

	logger.Info("download phase finished",
		logging.String(logging.FieldPhase, PhaseDownload),
		logging.Int("downloaded", result.Downloaded),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.FailedItems),
	)
	return nil
}

// runCompose and runNormalize are best-effort: their failure never flips an
// otherwise-successful job to failed.
func (p *Pipeline) runCompose(ctx context.Context, sink progress.Sink, result *Result, logger *slog.Logger) {
	if p.Composer == nil {
		return
	}
	ctx = services.WithPhase(ctx, PhaseCompose)
	emitter := progress.NewEmitter(PhaseCompose, PhaseRange(PhaseCompose), sink)
	emitter.Emit(0, 0, "composing artifacts", nil)

	if err := p.Composer.Compose(ctx, result); err != nil {
		logger.Warn("artifact composition failed, continuing without artifacts",
			logging.String(logging.FieldPhase, PhaseCompose),
			logging.Error(err),
		)
		emitter.Done(fmt.Sprintf("artifact composition failed: %v", err))
		return
	}
	emitter.Done("artifacts composed")
}

func (p *Pipeline) runNormalize(ctx context.Context, sink progress.Sink, result *Result, logger *slog.Logger) {
	if p.Normalizer == nil {
		return
	}
	ctx = services.WithPhase(ctx, PhaseNormalize)
	emitter := progress.NewEmitter(PhaseNormalize, PhaseRange(PhaseNormalize), sink)
	emitter.Emit(0, 0, "normalizing loudness", nil)

	if err := p.Normalizer.Normalize(ctx, result); err != nil {
		logger.Warn("loudness normalization failed, keeping original files",
			logging.String(logging.FieldPhase, PhaseNormalize),
			logging.Error(err),
		)
		emitter.Done(fmt.Sprintf("normalization failed: %v", err))
		return
	}
	emitter.Done("loudness normalized")
}

func (p *Pipeline) retryExecutor(logger *slog.Logger) *retry.Executor {
	if p.Retry != nil {
		return p.Retry
	}
	return &retry.Executor{Logger: logger}
}

func downloadMessage(dl DownloadResult, current, total int) string {
	switch dl.Outcome {
	case OutcomeDone:
		return fmt.Sprintf("downloaded %s (%d/%d)", dl.Track.Title, current, total)
	case OutcomeSkipped:
		return fmt.Sprintf("skipped %s (%d/%d)", dl.Track.Title, current, total)
	default:
		return fmt.Sprintf("failed %s (%d/%d): %s", dl.Track.Title, current, total, dl.Err)
	}
}
