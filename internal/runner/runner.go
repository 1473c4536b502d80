// Package runner executes queued jobs with a worker pool, a per-item
// heartbeat watchdog, and bounded retries. One slow or wedged item never
// blocks the rest of a job: the watchdog cancels it, the runner retries it
// with exponential backoff, and exhausting the retry budget fails only that
// item.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"curator/internal/config"
	"curator/internal/jobs"
	"curator/internal/logging"
	"curator/internal/services"
)

// ErrSkipItem marks an item a task cannot handle. Skipped items count toward
// progress but are neither retried nor treated as failures.
var ErrSkipItem = errors.New("item skipped")

// ItemResult is the final outcome of one snapshot entry.
type ItemResult struct {
	Entry    jobs.SnapshotEntry
	Outcome  Outcome
	Err      error
	Attempts int
}

// Outcome classifies how an item finished.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Task is the work a job performs. Prepare runs once before any item,
// Process runs per snapshot entry and must call heartbeat while making
// progress, Finalize runs once after every item has a final outcome.
type Task interface {
	Kind() jobs.Kind
	Prepare(ctx context.Context, job *jobs.Job) error
	Process(ctx context.Context, job *jobs.Job, entry jobs.SnapshotEntry, heartbeat func()) error
	Finalize(ctx context.Context, job *jobs.Job, results []ItemResult) error
}

// Runner polls the job store and drives jobs to a terminal status.
type Runner struct {
	cfg    *config.Config
	store  *jobs.Store
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[jobs.Kind]Task
	active map[string]*jobControl

	wg      sync.WaitGroup
	stopped chan struct{}
	cancel  context.CancelFunc
}

type jobControl struct {
	cancel context.CancelFunc
	paused atomic.Bool
	resume chan struct{}
}

// New constructs a runner. Tasks are registered per job kind before Start.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		tasks:   make(map[jobs.Kind]Task),
		active:  make(map[string]*jobControl),
		stopped: make(chan struct{}),
	}
}

// RegisterTask binds a task implementation to a job kind.
func (r *Runner) RegisterTask(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.Kind()] = task
}

// Start launches the polling loop. It returns immediately; Stop shuts the
// loop down and waits for in-flight jobs.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.pollLoop(ctx)
}

// Stop cancels all work and blocks until the runner is idle.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	select {
	case <-r.stopped:
	default:
		close(r.stopped)
	}
}

func (r *Runner) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	poll := time.Duration(r.cfg.Workflow.JobPollInterval) * time.Second
	errorRetry := time.Duration(r.cfg.Workflow.ErrorRetryInterval) * time.Second
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		job, err := r.store.NextQueued(ctx)
		switch {
		case err != nil:
			r.logger.Error("poll for queued jobs failed",
				logging.String(logging.FieldComponent, "runner"),
				logging.Error(err))
			timer.Reset(errorRetry)
		case job == nil:
			timer.Reset(poll)
		default:
			r.executeJob(ctx, job)
			timer.Reset(0)
		}
	}
}

// RunJob executes a single job synchronously. The polling loop uses it for
// queued jobs; tests and the facade may call it directly.
func (r *Runner) RunJob(ctx context.Context, jobID string) error {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusQueued {
		return services.Wrap(services.ErrValidation, "runner", "run-job", fmt.Sprintf("job %s is %s, not queued", jobID, job.Status), nil)
	}
	r.executeJob(ctx, job)
	return nil
}

func (r *Runner) executeJob(ctx context.Context, job *jobs.Job) {
	r.mu.Lock()
	task, ok := r.tasks[job.Kind]
	r.mu.Unlock()
	if !ok {
		r.failJob(ctx, job.ID, fmt.Sprintf("no task registered for kind %s", job.Kind))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	control := &jobControl{cancel: cancel, resume: make(chan struct{}, 1)}
	r.mu.Lock()
	r.active[job.ID] = control
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, job.ID)
		r.mu.Unlock()
	}()

	if _, err := r.store.Transition(jobCtx, job.ID, jobs.StatusRunning, ""); err != nil {
		r.logger.Error("job could not start",
			logging.String(logging.FieldComponent, "runner"),
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return
	}
	r.logger.Info("job started",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("kind", string(job.Kind)),
		logging.Int("items", len(job.Snapshot)))

	heartbeatDone := r.startJobHeartbeat(jobCtx, job.ID)
	defer heartbeatDone()

	if err := task.Prepare(jobCtx, job); err != nil {
		r.failJob(ctx, job.ID, fmt.Sprintf("prepare: %v", err))
		return
	}

	results := r.processItems(jobCtx, control, task, job)

	if jobCtx.Err() != nil {
		// Cancelled mid-flight. Artifacts already written stay on disk and
		// finalize still runs so the manifest records every settled item.
		finalCtx := context.WithoutCancel(ctx)
		if err := task.Finalize(finalCtx, job, settledResults(results)); err != nil {
			r.logger.Warn("finalize after cancel failed",
				logging.String(logging.FieldComponent, "runner"),
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
		r.finishCancelled(finalCtx, job.ID)
		return
	}

	if err := task.Finalize(jobCtx, job, results); err != nil {
		r.failJob(ctx, job.ID, fmt.Sprintf("finalize: %v", err))
		return
	}

	if err := r.completeJob(ctx, job.ID); err != nil {
		r.logger.Error("completion transition failed",
			logging.String(logging.FieldComponent, "runner"),
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return
	}
	r.logger.Info("job completed",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, job.ID))
}

// processItems fans snapshot entries out to the worker pool and aggregates
// outcomes. Progress is persisted after every item so status queries always
// see live counts.
func (r *Runner) processItems(ctx context.Context, control *jobControl, task Task, job *jobs.Job) []ItemResult {
	workers := r.cfg.Workflow.ExportWorkers
	if workers < 1 {
		workers = 1
	}

	type indexed struct {
		index int
		entry jobs.SnapshotEntry
	}
	items := make(chan indexed)
	results := make([]ItemResult, len(job.Snapshot))

	var (
		progressMu sync.Mutex
		progress   = job.Progress
		itemErrors = append([]jobs.ItemError{}, job.ItemErrors...)
	)
	if progress.Total == 0 {
		progress.Total = len(job.Snapshot)
	}

	record := func(index int, res ItemResult) {
		results[index] = res

		progressMu.Lock()
		defer progressMu.Unlock()
		switch res.Outcome {
		case OutcomeSucceeded:
			progress.Succeeded++
		case OutcomeSkipped:
			progress.Skipped++
			kind := services.Kind(res.Err)
			if kind == "internal" {
				kind = "unsupported"
			}
			itemErrors = append(itemErrors, jobs.ItemError{
				SampleID: res.Entry.SampleID,
				Kind:     kind,
				Message:  errorMessage(res.Err),
				Attempts: res.Attempts,
			})
		case OutcomeFailed:
			progress.Failed++
			itemErrors = append(itemErrors, jobs.ItemError{
				SampleID: res.Entry.SampleID,
				Kind:     services.Kind(res.Err),
				Message:  errorMessage(res.Err),
				Attempts: res.Attempts,
			})
		}
		if err := r.store.UpdateProgress(ctx, job.ID, progress, itemErrors); err != nil && ctx.Err() == nil {
			r.logger.Error("progress update failed",
				logging.String(logging.FieldComponent, "runner"),
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				record(item.index, r.runItem(ctx, task, job, item.entry))
			}
		}()
	}

dispatch:
	for i, entry := range job.Snapshot {
		// Pause gates dispatch of new items; in-flight items finish.
		if !r.waitWhilePaused(ctx, control, job.ID) {
			break dispatch
		}
		select {
		case items <- indexed{index: i, entry: entry}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(items)
	wg.Wait()
	return results
}

// runItem drives one snapshot entry through attempts, the stall watchdog,
// and backoff until it succeeds, skips, or exhausts the retry budget.
func (r *Runner) runItem(ctx context.Context, task Task, job *jobs.Job, entry jobs.SnapshotEntry) ItemResult {
	maxRetries := r.cfg.Workflow.MaxItemRetries
	backoff := time.Duration(r.cfg.Workflow.RetryBackoffMillis) * time.Millisecond
	itemTimeout := time.Duration(r.cfg.Workflow.ItemTimeout) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return ItemResult{Entry: entry, Outcome: OutcomeFailed, Err: ctx.Err(), Attempts: attempt - 1}
		}

		err := r.attemptItem(ctx, task, job, entry, itemTimeout)
		switch {
		case err == nil:
			return ItemResult{Entry: entry, Outcome: OutcomeSucceeded, Attempts: attempt}
		case errors.Is(err, ErrSkipItem):
			return ItemResult{Entry: entry, Outcome: OutcomeSkipped, Err: err, Attempts: attempt}
		case ctx.Err() != nil:
			return ItemResult{Entry: entry, Outcome: OutcomeFailed, Err: ctx.Err(), Attempts: attempt}
		}
		lastErr = err

		if attempt <= maxRetries {
			r.noteRetry(ctx, job.ID, entry.SampleID, attempt, err)
			wait := backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ItemResult{Entry: entry, Outcome: OutcomeFailed, Err: ctx.Err(), Attempts: attempt}
			}
		}
	}

	final := services.Wrap(services.ErrRetryBudget, "runner", "run-item",
		fmt.Sprintf("sample %s failed after %d attempts", entry.SampleID, maxRetries+1), lastErr)
	r.logger.Warn("item exhausted retry budget",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSampleID, entry.SampleID),
		logging.Error(lastErr))
	return ItemResult{Entry: entry, Outcome: OutcomeFailed, Err: final, Attempts: maxRetries + 1}
}

// attemptItem runs Process once under the watchdog. The heartbeat timestamp
// is advanced by the task; if it goes stale past the item timeout the
// attempt's context is cancelled and the attempt fails with a stall error.
func (r *Runner) attemptItem(ctx context.Context, task Task, job *jobs.Job, entry jobs.SnapshotEntry, itemTimeout time.Duration) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastBeat atomic.Int64
	lastBeat.Store(time.Now().UnixNano())
	heartbeat := func() {
		lastBeat.Store(time.Now().UnixNano())
	}

	var stalled atomic.Bool
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(watchdogTick(itemTimeout))
		defer ticker.Stop()
		for {
			select {
			case <-attemptCtx.Done():
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastBeat.Load()))
				if idle > itemTimeout {
					stalled.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	err := task.Process(attemptCtx, job, entry, heartbeat)
	cancel()
	<-watchdogDone

	if stalled.Load() {
		return services.Wrap(services.ErrStallTimeout, "runner", "attempt-item",
			fmt.Sprintf("sample %s made no progress for %s", entry.SampleID, itemTimeout), err)
	}
	return err
}

// noteRetry surfaces a stall-and-retry cycle in the job status. Transitions
// race between workers; an illegal hop just means another item got there
// first, so it is ignored.
func (r *Runner) noteRetry(ctx context.Context, jobID, sampleID string, attempt int, err error) {
	r.logger.Warn("item attempt failed, retrying",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldSampleID, sampleID),
		logging.Int("attempt", attempt),
		logging.Error(err))

	if !errors.Is(err, services.ErrStallTimeout) {
		return
	}
	var te *jobs.TransitionError
	for _, next := range []jobs.Status{jobs.StatusStalled, jobs.StatusRetrying, jobs.StatusRunning} {
		if _, trErr := r.store.Transition(ctx, jobID, next, ""); trErr != nil && !errors.As(trErr, &te) {
			return
		}
	}
}

func (r *Runner) waitWhilePaused(ctx context.Context, control *jobControl, jobID string) bool {
	for control.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-control.resume:
		case <-time.After(100 * time.Millisecond):
		}
	}
	return ctx.Err() == nil
}

// Pause stops dispatching new items for a running job. In-flight items run
// to completion.
func (r *Runner) Pause(ctx context.Context, jobID string) error {
	r.mu.Lock()
	control, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "runner", "pause", fmt.Sprintf("job %s is not running", jobID), nil)
	}
	if _, err := r.store.Transition(ctx, jobID, jobs.StatusPaused, ""); err != nil {
		return err
	}
	control.paused.Store(true)
	return nil
}

// Resume restarts item dispatch for a paused job.
func (r *Runner) Resume(ctx context.Context, jobID string) error {
	r.mu.Lock()
	control, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "runner", "resume", fmt.Sprintf("job %s is not running", jobID), nil)
	}
	if _, err := r.store.Transition(ctx, jobID, jobs.StatusRunning, ""); err != nil {
		return err
	}
	control.paused.Store(false)
	select {
	case control.resume <- struct{}{}:
	default:
	}
	return nil
}

// Cancel stops a job. Queued jobs are cancelled in place; running jobs have
// their context cancelled and transition once in-flight work unwinds.
// Artifacts already written are preserved.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	control, running := r.active[jobID]
	r.mu.Unlock()

	if running {
		control.paused.Store(false)
		control.cancel()
		return nil
	}

	_, err := r.store.Transition(ctx, jobID, jobs.StatusCancelled, "cancelled by request")
	return err
}

func (r *Runner) startJobHeartbeat(ctx context.Context, jobID string) func() {
	interval := time.Duration(r.cfg.Workflow.HeartbeatInterval) * time.Second
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := r.store.UpdateHeartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
					r.logger.Warn("job heartbeat update failed",
						logging.String(logging.FieldComponent, "runner"),
						logging.String(logging.FieldJobID, jobID),
						logging.Error(err))
				}
			}
		}
	}()
	return func() { close(done) }
}

func (r *Runner) finishCancelled(ctx context.Context, jobID string) {
	var te *jobs.TransitionError
	if _, err := r.store.Transition(ctx, jobID, jobs.StatusCancelled, "cancelled by request"); err != nil && !errors.As(err, &te) {
		r.logger.Error("cancel transition failed",
			logging.String(logging.FieldComponent, "runner"),
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
	r.logger.Info("job cancelled",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, jobID))
}

func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	var te *jobs.TransitionError
	if _, err := r.store.Transition(ctx, jobID, jobs.StatusFailed, message); err != nil && !errors.As(err, &te) {
		r.logger.Error("failure transition failed",
			logging.String(logging.FieldComponent, "runner"),
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
	r.logger.Error("job failed",
		logging.String(logging.FieldComponent, "runner"),
		logging.String(logging.FieldJobID, jobID),
		logging.String("reason", message))
}

// completeJob moves a job to completed, hopping out of paused first when a
// pause landed after the last item was dispatched.
func (r *Runner) completeJob(ctx context.Context, jobID string) error {
	_, err := r.store.Transition(ctx, jobID, jobs.StatusCompleted, "")
	var te *jobs.TransitionError
	if errors.As(err, &te) && te.From == jobs.StatusPaused {
		if _, resumeErr := r.store.Transition(ctx, jobID, jobs.StatusRunning, ""); resumeErr != nil {
			return resumeErr
		}
		_, err = r.store.Transition(ctx, jobID, jobs.StatusCompleted, "")
	}
	return err
}

// settledResults drops entries that never reached an outcome, which happens
// when a job is cancelled before every item was dispatched.
func settledResults(results []ItemResult) []ItemResult {
	settled := make([]ItemResult, 0, len(results))
	for _, res := range results {
		if res.Outcome != "" {
			settled = append(settled, res)
		}
	}
	return settled
}

func watchdogTick(itemTimeout time.Duration) time.Duration {
	tick := itemTimeout / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return tick
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SortResults orders item results by sample id for deterministic manifests.
func SortResults(results []ItemResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Entry.SampleID < results[j].Entry.SampleID
	})
}
