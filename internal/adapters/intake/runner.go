// Package intake provides the adapter that turns queued jobs into pipeline
// runs. It waits on the store's queued-job notification, claims jobs, and
// dispatches each one to the orchestrator in its own goroutine.
package intake

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/smeltapp/smeltd/internal/core"
	"github.com/smeltapp/smeltd/internal/data"
	"github.com/smeltapp/smeltd/internal/domain/model"
	"github.com/smeltapp/smeltd/internal/observability/statsd"
)

// Dispatcher runs one claimed job to a terminal stage. Satisfied by
// *pipeline.Orchestrator.
type Dispatcher interface {
	Run(ctx context.Context, jobID string)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB         *sql.DB
	Dispatcher Dispatcher
	Logger     *slog.Logger

	// Workers caps concurrent pipeline runs; defaults to 4.
	Workers int
	// PollInterval bounds how long the runner waits on LISTEN/NOTIFY before
	// checking the queue again; defaults to 15s. The poll is a backstop for
	// notifications dropped across connection resets.
	PollInterval time.Duration
	// RetryDelay is the pause after a failed claim or wait; defaults to 3s.
	RetryDelay time.Duration

	// Optional dependency injections for testing/decoupling
	Jobs    core.JobRepository
	Metrics statsd.Sink
}

// Runner claims queued jobs and fans them out to the dispatcher.
type Runner struct {
	jobs         core.JobRepository
	dispatcher   Dispatcher
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration
	retryDelay   time.Duration
	metrics      statsd.Sink
}

// NewRunner creates a new intake runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	return &Runner{
		jobs:         jobs,
		dispatcher:   opts.Dispatcher,
		logger:       opts.Logger,
		workers:      opts.Workers,
		pollInterval: opts.PollInterval,
		retryDelay:   opts.RetryDelay,
		metrics:      opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Jobs == nil {
		return errors.New("database connection is required")
	}
	if opts.Dispatcher == nil {
		return errors.New("dispatcher is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run claims and dispatches jobs until the context is cancelled, then waits
// for in-flight pipeline runs to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting intake runner",
		"workers", r.workers,
		"poll_interval", r.pollInterval,
	)

	sem := semaphore.NewWeighted(int64(r.workers))
	var wg sync.WaitGroup

	// In-flight jobs keep running through shutdown; cancelling them
	// mid-stage would fail work that is about to complete.
	runCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		r.drain(ctx, runCtx, sem, &wg)
		r.waitForWork(ctx)
	}

	r.logger.InfoContext(ctx, "intake runner stopping, draining in-flight jobs")
	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// drain claims queued jobs until the queue is empty, dispatching each claim
// under the worker semaphore.
func (r *Runner) drain(ctx, runCtx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup) {
	for {
		jobID, err := r.jobs.ClaimQueued(ctx)
		switch {
		case err == nil:
			if acqErr := sem.Acquire(ctx, 1); acqErr != nil {
				// Shutdown while at capacity; the claim survives and a
				// restarted runner will not see it as queued, so run it
				// before exiting.
				r.dispatch(runCtx, jobID, wg, nil)
				return
			}
			r.dispatch(runCtx, jobID, wg, sem)
		case errors.Is(err, model.ErrNoJobsQueued):
			return
		case ctx.Err() != nil:
			return
		default:
			r.logger.ErrorContext(ctx, "claim queued job failed", "error", err)
			r.pause(ctx, r.retryDelay)
			return
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, jobID string, wg *sync.WaitGroup, sem *semaphore.Weighted) {
	if r.metrics != nil {
		r.metrics.Count("intake.jobs_claimed", 1, nil)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if sem != nil {
			defer sem.Release(1)
		}
		r.dispatcher.Run(ctx, jobID)
	}()
}

// waitForWork blocks on the queued-job notification, bounded by the poll
// interval so dropped notifications only delay work instead of stalling it.
func (r *Runner) waitForWork(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, r.pollInterval)
	defer cancel()

	err := r.jobs.WaitForQueued(waitCtx)
	switch {
	case err == nil:
		return
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return
	default:
		r.logger.WarnContext(ctx, "queued-job wait failed", "error", err)
		r.pause(ctx, r.retryDelay)
	}
}

func (r *Runner) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
