// Package executor runs admitted jobs in the background, one at a time. It owns
// the cancel-token and in-flight-handle registries, bridges pipeline progress
// events into the job store through a channel hand-off, finalizes terminal
// status exactly once, and self-triggers the next queued job when one finishes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cadence/internal/jobs"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/progress"
	"cadence/internal/services"
)

// eventBuffer sizes the per-job hand-off channel between the pipeline worker
// and the goroutine that applies updates to the store.
const eventBuffer = 256

// Executor supervises background job executions.
type Executor struct {
	store    *jobs.Store
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	tokens  map[string]*jobs.Token
	handles map[string]chan struct{}
	wg      sync.WaitGroup
}

// New constructs an executor over the given store and pipeline.
func New(store *jobs.Store, pl *pipeline.Pipeline, logger *slog.Logger) *Executor {
	return &Executor{
		store:    store,
		pipeline: pl,
		logger:   logging.NewComponentLogger(logger, "executor"),
		tokens:   make(map[string]*jobs.Token),
		handles:  make(map[string]chan struct{}),
	}
}

// StartJob spawns a supervised background execution for the job. The handle is
// retained in the registry until the execution finishes so the goroutine's
// lifetime is always observable, and deregistered on completion.
func (e *Executor) StartJob(ctx context.Context, job *jobs.Job) {
	if job == nil {
		return
	}
	token := jobs.NewToken()
	done := make(chan struct{})

	e.mu.Lock()
	if _, exists := e.handles[job.ID]; exists {
		e.mu.Unlock()
		e.logger.Warn("job already executing", logging.String(logging.FieldJobID, job.ID))
		return
	}
	e.tokens[job.ID] = token
	e.handles[job.ID] = done
	e.wg.Add(1)
	e.mu.Unlock()

	go e.runJob(ctx, job, token, done)
}

// CancelJob signals the live token for an in-flight execution. It reports false
// when the job is not currently executing; a merely-queued job is cancelled
// purely through the store, with no token involved.
func (e *Executor) CancelJob(id string) bool {
	e.mu.Lock()
	token, ok := e.tokens[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	token.Cancel()
	return true
}

// Running reports whether a job currently has a live execution.
func (e *Executor) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[id]
	return ok
}

// Shutdown cancels every live execution and waits for them to finish or for
// the context to expire.
func (e *Executor) Shutdown(ctx context.Context) {
	e.mu.Lock()
	for _, token := range e.tokens {
		token.Cancel()
	}
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		e.logger.Warn("shutdown timed out waiting for job executions")
	}
}

func (e *Executor) runJob(ctx context.Context, job *jobs.Job, token *jobs.Token, done chan struct{}) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, e.logger)

	// Guaranteed cleanup: deregister, then advance the queue. Continuation is
	// self-triggering; there is no separate scheduler loop.
	defer func() {
		e.deregister(job.ID)
		close(done)
		e.wg.Done()
		if next := e.store.PopNextPending(); next != nil {
			logger.Info("starting next queued job", logging.String("next_job_id", next.ID))
			e.StartJob(ctx, next)
		}
	}()

	// The store may already show the job cancelled if the cancel arrived
	// between admission and this goroutine starting.
	current := e.store.Get(job.ID)
	if current == nil || current.IsTerminal() {
		return
	}

	fetching := jobs.StatusFetchingInfo
	e.store.Transition(job.ID, jobs.Update{Status: &fetching}, "fetching source information")

	events := make(chan progress.Event, eventBuffer)
	var bridge sync.WaitGroup
	bridge.Add(1)
	go func() {
		defer bridge.Done()
		for ev := range events {
			e.applyEvent(job.ID, ev)
		}
	}()

	sink := coalescingSink(events)

	result, runErr := e.runPipeline(ctx, job, token, sink)
	close(events)
	bridge.Wait()

	e.finalize(job.ID, result, runErr, logger)
}

// coalescingSink hands events to the bridge without ever blocking the worker.
// When the bridge falls behind and the buffer fills, the oldest queued event is
// discarded to make room, so the freshest event always lands. Stale percentages
// are safe to shed; the newest one may carry the metadata snapshot or the final
// phase position and must survive.
func coalescingSink(events chan progress.Event) progress.Sink {
	return func(ev progress.Event) {
		for {
			select {
			case events <- ev:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
		}
	}
}

// runPipeline confines panics from phase code to this job: an uncaught panic
// becomes a job failure, never a daemon crash.
func (e *Executor) runPipeline(ctx context.Context, job *jobs.Job, token *jobs.Token, sink progress.Sink) (result *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return e.pipeline.Run(ctx, job, token, sink)
}

// applyEvent forwards one progress event into the store. The store refuses
// writes to terminal jobs, so a cancellation that landed while this event was
// in flight can never be overwritten by a stale in-progress status.
func (e *Executor) applyEvent(id string, ev progress.Event) {
	status := statusForPhase(ev.Phase)
	upd := jobs.Update{
		Status:   &status,
		Progress: &ev.Percent,
	}
	if ev.Total > 0 {
		current, total := ev.Current, ev.Total
		upd.Current = &current
		upd.Total = &total
	}
	if collection, ok := ev.Payload.(*pipeline.Collection); ok && collection != nil {
		upd.Metadata = &jobs.Metadata{
			Title:      collection.Title,
			Artist:     collection.Artist,
			Kind:       collection.Kind,
			TrackCount: collection.TrackCount,
			CoverURL:   collection.CoverURL,
		}
	}
	e.store.Transition(id, upd, ev.Message)
}

// finalize applies exactly one terminal transition for the execution. Cancelled
// runs are already terminal in the store; everything else maps to completed or
// failed here.
func (e *Executor) finalize(id string, result *pipeline.Result, runErr error, logger *slog.Logger) {
	var metadata *jobs.Metadata
	if result != nil && result.Collection != nil {
		metadata = &jobs.Metadata{
			Title:      result.Collection.Title,
			Artist:     result.Collection.Artist,
			Kind:       result.Collection.Kind,
			TrackCount: result.Collection.TrackCount,
			CoverURL:   result.Collection.CoverURL,
		}
	}

	switch {
	case runErr == nil:
		completed := jobs.StatusCompleted
		hundred := 100.0
		message := completionMessage(result)
		e.store.Transition(id, jobs.Update{Status: &completed, Progress: &hundred, Metadata: metadata}, message)
		logger.Info("job completed", logging.String("summary", message))

	case errors.Is(runErr, jobs.ErrCancelled) || errors.Is(runErr, context.Canceled):
		// Usually a no-op: the cancel path already moved the store to
		// cancelled. Covers the token being fired directly.
		e.store.Cancel(id)
		logger.Info("job cancelled")

	default:
		failed := jobs.StatusFailed
		message := runErr.Error()
		e.store.Transition(id, jobs.Update{Status: &failed, ErrorMessage: &message, Metadata: metadata}, message)
		logger.Error("job failed", logging.Error(runErr))
	}
}

func (e *Executor) deregister(id string) {
	e.mu.Lock()
	delete(e.tokens, id)
	delete(e.handles, id)
	e.mu.Unlock()
}

func statusForPhase(phase string) jobs.Status {
	switch phase {
	case pipeline.PhaseExtract:
		return jobs.StatusFetchingInfo
	case pipeline.PhaseDownload:
		return jobs.StatusDownloading
	default:
		return jobs.StatusImporting
	}
}

func completionMessage(result *pipeline.Result) string {
	if result == nil {
		return "download complete"
	}
	message := fmt.Sprintf("download complete: %d tracks", result.Downloaded)
	if result.Skipped > 0 {
		message += fmt.Sprintf(", %d skipped", result.Skipped)
	}
	if result.FailedItems > 0 {
		message += fmt.Sprintf(", %d failed", result.FailedItems)
	}
	return message
}
