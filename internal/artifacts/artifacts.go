// Package artifacts composes the collection-level outputs of a finished job: an
// m3u8 playlist over the downloaded tracks and the collection's cover image.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/downloader"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
)

// Composer writes playlist and cover artifacts into the library directory. It
// satisfies pipeline.Composer.
type Composer struct {
	libraryDir string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a composer from application config.
func New(cfg *config.Config, logger *slog.Logger) *Composer {
	return &Composer{
		libraryDir: cfg.Paths.LibraryDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewComponentLogger(logger, "artifacts"),
	}
}

// Compose writes the playlist for multi-track collections and saves the cover
// image when the catalog provided one. Single tracks get no playlist.
func (c *Composer) Compose(ctx context.Context, result *pipeline.Result) error {
	if result.Collection == nil {
		return nil
	}

	base := downloader.SanitizeName(result.Collection.Title)
	if base == "" {
		base = "collection"
	}

	if result.Collection.Kind != "track" && result.Downloaded > 0 {
		playlistPath := filepath.Join(c.libraryDir, base+".m3u8")
		if err := c.writePlaylist(playlistPath, result); err != nil {
			return fmt.Errorf("write playlist: %w", err)
		}
		result.PlaylistPath = playlistPath
	}

	if result.Collection.CoverURL != "" {
		coverPath := filepath.Join(c.libraryDir, base+".jpg")
		if err := c.saveCover(ctx, result.Collection.CoverURL, coverPath); err != nil {
			// Playlist alone is still a useful artifact.
			c.logger.Warn("cover download failed", logging.Error(err))
		} else {
			result.CoverPath = coverPath
		}
	}

	return nil
}

func (c *Composer) writePlaylist(path string, result *pipeline.Result) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, dl := range result.Downloads {
		if dl.Outcome != pipeline.OutcomeDone || dl.Path == "" {
			continue
		}
		rel, err := filepath.Rel(c.libraryDir, dl.Path)
		if err != nil {
			rel = dl.Path
		}
		fmt.Fprintf(&b, "#EXTINF:-1,%s - %s\n%s\n", dl.Track.Artist, dl.Track.Title, rel)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (c *Composer) saveCover(ctx context.Context, coverURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover fetch returned %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		_ = os.Remove(path)
		return err
	}
	return file.Close()
}
