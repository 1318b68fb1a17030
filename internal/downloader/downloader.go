// Package downloader streams track content into the staging directory and
// files finished tracks into the library layout Artist/Album/NN - Title.ext.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cadence/internal/archive"
	"cadence/internal/config"
	"cadence/internal/jobs"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/services"
)

// chunkSize is how many bytes stream between cancellation polls and progress
// callbacks.
const chunkSize = 256 * 1024

// Downloader fetches individual tracks. It satisfies pipeline.Downloader.
type Downloader struct {
	httpClient *http.Client
	stagingDir string
	libraryDir string
	archive    *archive.Store
	logger     *slog.Logger
}

// New builds a downloader. The archive is optional; when present,
// already-archived tracks are skipped and successes are recorded.
func New(cfg *config.Config, arch *archive.Store, logger *slog.Logger) *Downloader {
	return &Downloader{
		// No overall timeout: a large track on a slow link may legitimately
		// take a long time. Cancellation comes from the token.
		httpClient: &http.Client{},
		stagingDir: cfg.Paths.StagingDir,
		libraryDir: cfg.Paths.LibraryDir,
		archive:    arch,
		logger:     logging.NewComponentLogger(logger, "downloader"),
	}
}

// Fetch downloads one track. Per-item failures the retry executor should see
// come back as tagged errors; terminal per-item outcomes (already archived,
// destination exists) come back as skipped results.
func (d *Downloader) Fetch(ctx context.Context, req pipeline.FetchRequest) (pipeline.DownloadResult, error) {
	track := req.Track

	if track.StreamURL == "" {
		return pipeline.DownloadResult{Track: track, Outcome: pipeline.OutcomeSkipped, Err: "no stream url"}, nil
	}

	if d.archive != nil {
		archived, err := d.archive.Contains(ctx, track.ID)
		if err != nil {
			d.logger.Warn("archive lookup failed, downloading anyway", logging.Error(err))
		} else if archived {
			return pipeline.DownloadResult{Track: track, Outcome: pipeline.OutcomeSkipped, Err: "already in archive"}, nil
		}
	}

	destination := d.destinationPath(track, req.Format)
	if _, err := os.Stat(destination); err == nil {
		return pipeline.DownloadResult{Track: track, Outcome: pipeline.OutcomeSkipped, Err: "file already exists"}, nil
	}

	staged, err := d.stream(ctx, track, req)
	if err != nil {
		return pipeline.DownloadResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		_ = os.Remove(staged)
		return pipeline.DownloadResult{}, services.Wrap(services.ErrConfiguration, "downloader", "file track", "create library directory", err)
	}
	if err := moveFile(staged, destination); err != nil {
		_ = os.Remove(staged)
		return pipeline.DownloadResult{}, services.Wrap(services.ErrTransient, "downloader", "file track", "move into library", err)
	}

	if d.archive != nil {
		entry := archive.Entry{
			TrackID:      track.ID,
			Title:        track.Title,
			Artist:       track.Artist,
			FilePath:     destination,
			DownloadedAt: time.Now().UTC(),
		}
		if err := d.archive.Record(ctx, entry); err != nil {
			d.logger.Warn("archive record failed", logging.String("track", track.Title), logging.Error(err))
		}
	}

	return pipeline.DownloadResult{Track: track, Outcome: pipeline.OutcomeDone, Path: destination}, nil
}

// stream fetches the track body into a staging file, polling the token and
// reporting progress per chunk.
func (d *Downloader) stream(ctx context.Context, track pipeline.Track, req pipeline.FetchRequest) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, track.StreamURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "downloader", "fetch", "build request", err)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "downloader", "fetch", "request content", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, track.Title)
	}

	if err := os.MkdirAll(d.stagingDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "downloader", "fetch", "create staging directory", err)
	}
	staged, err := os.CreateTemp(d.stagingDir, "track-*.partial")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "downloader", "fetch", "create staging file", err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		if req.Token.Cancelled() {
			staged.Close()
			_ = os.Remove(staged.Name())
			return "", jobs.ErrCancelled
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := staged.Write(buf[:n]); writeErr != nil {
				staged.Close()
				_ = os.Remove(staged.Name())
				return "", services.Wrap(services.ErrTransient, "downloader", "fetch", "write staging file", writeErr)
			}
			written += int64(n)
			if req.Progress != nil {
				req.Progress(written, resp.ContentLength)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			staged.Close()
			_ = os.Remove(staged.Name())
			return "", services.Wrap(services.ErrTransient, "downloader", "fetch", "read content", readErr)
		}
	}

	if err := staged.Close(); err != nil {
		_ = os.Remove(staged.Name())
		return "", services.Wrap(services.ErrTransient, "downloader", "fetch", "close staging file", err)
	}
	return staged.Name(), nil
}

func (d *Downloader) destinationPath(track pipeline.Track, format string) string {
	artist := SanitizeName(track.Artist)
	if artist == "" {
		artist = "Unknown Artist"
	}
	album := SanitizeName(track.Album)
	if album == "" {
		album = "Unknown Album"
	}
	title := SanitizeName(track.Title)
	if title == "" {
		title = track.ID
	}

	name := title
	if track.TrackNumber > 0 {
		name = fmt.Sprintf("%02d - %s", track.TrackNumber, title)
	}
	return filepath.Join(d.libraryDir, artist, album, name+"."+format)
}

// moveFile renames when possible and falls back to a copy for cross-device
// staging/library splits.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func classifyStatus(status int, title string) error {
	detail := fmt.Sprintf("source returned %d for %q", status, title)
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "downloader", "fetch", detail, nil)
	case status >= 500:
		return services.Wrap(services.ErrUnavailable, "downloader", "fetch", detail, nil)
	case status == http.StatusNotFound, status == http.StatusForbidden, status == http.StatusGone:
		return services.Wrap(services.ErrContentUnavailable, "downloader", "fetch", detail, nil)
	default:
		return services.Wrap(services.ErrTransient, "downloader", "fetch", detail, nil)
	}
}
