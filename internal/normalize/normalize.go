// Package normalize applies EBU R128 loudness normalization to downloaded
// tracks by shelling out to ffmpeg.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"cadence/internal/config"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
)

// loudnormFilter targets streaming-friendly loudness.
const loudnormFilter = "loudnorm=I=-14:TP=-2:LRA=11"

// Normalizer runs ffmpeg over each downloaded file. It satisfies
// pipeline.Normalizer.
type Normalizer struct {
	binary string
	logger *slog.Logger
}

// New builds a normalizer from application config.
func New(cfg *config.Config, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		binary: cfg.Normalize.FFmpegBinary,
		logger: logging.NewComponentLogger(logger, "normalize"),
	}
}

// Normalize rewrites every successfully downloaded file in place. A missing
// ffmpeg fails the whole phase (which the pipeline downgrades to a warning); a
// single bad file is logged and skipped.
func (n *Normalizer) Normalize(ctx context.Context, result *pipeline.Result) error {
	if _, err := exec.LookPath(n.binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", n.binary, err)
	}

	for _, dl := range result.Downloads {
		if dl.Outcome != pipeline.OutcomeDone || dl.Path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.normalizeFile(ctx, dl.Path); err != nil {
			n.logger.Warn("normalization skipped for track",
				logging.String("file", dl.Path),
				logging.Error(err),
			)
		}
	}
	return nil
}

func (n *Normalizer) normalizeFile(ctx context.Context, path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".loudnorm")

	cmd := exec.CommandContext(ctx, n.binary,
		"-y",
		"-i", path,
		"-af", loudnormFilter,
		tmp,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(output))
	}
	return os.Rename(tmp, path)
}

func tail(output []byte) string {
	const max = 256
	if len(output) <= max {
		return string(output)
	}
	return string(output[len(output)-max:])
}
