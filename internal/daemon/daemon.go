// Package daemon coordinates the background services of cadenced: the job
// registry, the executor, the download archive, and the HTTP API, with
// single-instance enforcement through a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cadence/internal/archive"
	"cadence/internal/config"
	"cadence/internal/executor"
	"cadence/internal/jobs"
	"cadence/internal/logging"
)

// Daemon enforces single-instance execution and owns component lifecycles.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	exec    *executor.Executor
	archive *archive.Store

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Status represents daemon runtime information.
type Status struct {
	Running       bool           `json:"running"`
	Version       string         `json:"version"`
	PID           int            `json:"pid"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	LockFilePath  string         `json:"lock_file_path"`
	ActiveJobID   string         `json:"active_job_id,omitempty"`
	JobCounts     map[string]int `json:"job_counts"`
	ArchivedCount int            `json:"archived_count"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, exec *executor.Executor, arch *archive.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || exec == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, executor, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "cadenced.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		exec:     exec,
		archive:  arch,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and brings up the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cadence daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("cadence daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, cancels in-flight executions, and releases the lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.exec.Shutdown(ctx)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("cadence daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	if d.archive != nil {
		return d.archive.Close()
	}
	return nil
}

// Status captures a point-in-time view of daemon state.
func (d *Daemon) Status(ctx context.Context) Status {
	counts := make(map[string]int)
	for status, n := range d.store.Stats() {
		counts[string(status)] = n
	}

	archived := 0
	if d.archive != nil {
		if n, err := d.archive.Count(ctx); err == nil {
			archived = n
		}
	}

	var uptime int64
	if d.running.Load() && !d.startedAt.IsZero() {
		uptime = int64(time.Since(d.startedAt).Seconds())
	}

	return Status{
		Running:       d.running.Load(),
		Version:       Version,
		PID:           os.Getpid(),
		UptimeSeconds: uptime,
		LockFilePath:  d.lockPath,
		ActiveJobID:   d.store.ActiveID(),
		JobCounts:     counts,
		ArchivedCount: archived,
	}
}

// SubmitJob admits a job and starts it immediately when the executor is idle.
func (d *Daemon) SubmitJob(sourceURL, format string) (*jobs.Job, error) {
	if format == "" {
		format = d.cfg.Downloads.Format
	}
	job, shouldStart, err := d.store.Create(sourceURL, format)
	if err != nil {
		return nil, err
	}
	d.logger.Info("job admitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_url", job.SourceURL),
		logging.Bool("starting", shouldStart),
	)
	if shouldStart {
		d.exec.StartJob(d.ctx, job)
	}
	return job, nil
}

// CancelJob cancels a job wherever it currently is: the token for an in-flight
// execution, the store for a queued one. True means this call performed the
// cancellation.
func (d *Daemon) CancelJob(id string) bool {
	cancelled := d.store.Cancel(id)
	d.exec.CancelJob(id)
	return cancelled
}
