package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/smeltapp/smeltd/internal/audio"
	"github.com/smeltapp/smeltd/internal/core"
	"github.com/smeltapp/smeltd/internal/data"
	"github.com/smeltapp/smeltd/internal/domain/model"
	errs "github.com/smeltapp/smeltd/internal/errors"
	"github.com/smeltapp/smeltd/internal/observability/notify"
)

const defaultSettleDelay = 500 * time.Millisecond

// Orchestrator runs claimed jobs to a terminal stage. One call to Run owns
// the job for its whole lifetime; there is no retry and no resume.
type Orchestrator struct {
	jobs        core.JobRepository
	prompts     PromptLoader
	results     core.ResultRepository
	credentials core.CredentialRepository
	client      LLMClient
	audio       AudioPreparer
	opener      ChannelOpener
	metrics     MetricsSink
	notifier    FailureNotifier
	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// Options configures an Orchestrator.
type Options struct {
	Jobs        core.JobRepository
	Prompts     PromptLoader
	Results     core.ResultRepository
	Credentials core.CredentialRepository
	Client      LLMClient
	Audio       AudioPreparer
	Opener      ChannelOpener
	Metrics     MetricsSink
	Notifier    FailureNotifier
	// SettleDelay is the pause after opening the broadcast channel so
	// just-connected subscribers catch the first event.
	SettleDelay time.Duration
	// Sleep is swappable for tests; defaults to a context-aware timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:        opts.Jobs,
		prompts:     opts.Prompts,
		results:     opts.Results,
		credentials: opts.Credentials,
		client:      opts.Client,
		audio:       opts.Audio,
		opener:      opts.Opener,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		settleDelay: settle,
		sleep:       sleep,
		logger:      logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jobRun carries one job's in-flight state between stages.
type jobRun struct {
	job    *model.Job
	ch     EventChannel
	apiKey string

	// transcripts maps file id to transcript text, filled by the
	// transcribing stage.
	transcripts map[string]string
	// formats records the validated audio format per file id.
	formats map[string]audio.Format
	// finalResults is filled by the synthesizing stage.
	finalResults []model.Result
}

// Run drives one claimed job from pending to a terminal stage. It is the
// fire-and-forget entry point: all failures are handled internally.
func (o *Orchestrator) Run(ctx context.Context, jobID string) {
	start := time.Now()

	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		o.logger.ErrorContext(ctx, "job load failed", "job_id", jobID, "error", err)
		return
	}
	if job.Stage.Terminal() {
		o.logger.WarnContext(ctx, "job already terminal", "job_id", jobID, "stage", job.Stage)
		return
	}

	run := &jobRun{
		job:         job,
		transcripts: make(map[string]string),
		formats:     make(map[string]audio.Format),
	}

	ch, err := o.opener.Open(ctx, jobID)
	if err != nil {
		// Without a channel there is no way to reach the subscriber, so
		// the job fails without a failed event.
		o.finishFailed(ctx, run, errs.Wrap(errs.KindConnectionLost, "broadcast channel unavailable", err))
		return
	}
	run.ch = ch
	defer ch.Close()

	if err := o.sleep(ctx, o.settleDelay); err != nil {
		o.finishFailed(ctx, run, err)
		return
	}

	run.apiKey = o.resolveOwnerKey(ctx, job)

	if err := o.execute(ctx, run); err != nil {
		o.finishFailed(ctx, run, err)
		return
	}

	if o.metrics != nil {
		o.metrics.JobCompleted(time.Since(start).Seconds())
	}
	o.logger.InfoContext(ctx, "job completed", "job_id", jobID, "duration", time.Since(start))
}

// execute runs the four working stages and the terminal completion.
func (o *Orchestrator) execute(ctx context.Context, run *jobRun) error {
	stages := []struct {
		stage model.Stage
		fn    func(context.Context, *jobRun) error
	}{
		{model.StageValidating, o.validateFiles},
		{model.StageDecoding, o.decodeFiles},
		{model.StageTranscribing, o.transcribeFiles},
		{model.StageSynthesizing, o.synthesize},
	}

	for _, s := range stages {
		if err := o.transition(ctx, run, s.stage); err != nil {
			return err
		}
		o.emitProgress(ctx, run, 0)

		stageStart := time.Now()
		if err := s.fn(ctx, run); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.StageDuration(string(s.stage), time.Since(stageStart).Seconds())
		}
		o.emitProgress(ctx, run, 1)
	}

	return o.finishCompleted(ctx, run)
}

// transition advances the job one stage and persists the new stage.
func (o *Orchestrator) transition(ctx context.Context, run *jobRun, next model.Stage) error {
	if !run.job.Stage.CanTransition(next) {
		return errs.Newf(errs.KindInternal, "illegal stage transition %s -> %s", run.job.Stage, next)
	}
	run.job.Stage = next
	return o.persist(ctx, run, "update stage", func() error {
		return o.jobs.UpdateStage(ctx, run.job.ID, next)
	})
}

// persist runs a store update, tolerating failures for anonymous jobs whose
// only feedback path is the broadcast channel.
func (o *Orchestrator) persist(ctx context.Context, run *jobRun, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if run.job.Anonymous() {
		o.logger.WarnContext(ctx, "store update skipped for anonymous job",
			"job_id", run.job.ID,
			"op", op,
			"error", err,
		)
		return nil
	}
	return errs.Wrap(errs.KindInternal, op+" failed", err)
}

// resolveOwnerKey loads the owner's stored provider credential. Absence is
// normal and falls back to the system-wide credential inside the client.
func (o *Orchestrator) resolveOwnerKey(ctx context.Context, job *model.Job) string {
	if job.Anonymous() || o.credentials == nil {
		return ""
	}
	key, err := o.credentials.GetByOwner(ctx, *job.OwnerID)
	if err != nil {
		if !errors.Is(err, data.ErrCredentialNotFound) {
			o.logger.WarnContext(ctx, "credential lookup failed",
				"job_id", job.ID,
				"error", err,
			)
		}
		return ""
	}
	return key
}

// finishCompleted persists results and the terminal stage, then emits the
// completed event. Results are durable before subscribers hear about them.
func (o *Orchestrator) finishCompleted(ctx context.Context, run *jobRun) error {
	if err := o.persist(ctx, run, "persist results", func() error {
		return o.results.Insert(ctx, run.job.ID, run.results())
	}); err != nil {
		return err
	}
	if err := o.persist(ctx, run, "mark completed", func() error {
		return o.jobs.MarkCompleted(ctx, run.job.ID)
	}); err != nil {
		return err
	}
	run.job.Stage = model.StageCompleted

	if err := run.ch.Completed(ctx, run.results()); err != nil {
		o.logger.WarnContext(ctx, "completed publish failed", "job_id", run.job.ID, "error", err)
	}
	return nil
}

// finishFailed classifies the error, persists the terminal failure, and
// emits exactly one failed event.
func (o *Orchestrator) finishFailed(ctx context.Context, run *jobRun, cause error) {
	perr := errs.Classify(cause)
	failedAt := run.job.Stage
	run.job.Stage = model.StageFailed
	code := string(perr.Kind)
	run.job.ErrorCode = &code
	run.job.ErrorMessage = &perr.Message

	if err := o.jobs.MarkFailed(ctx, run.job.ID, code, perr.Message); err != nil {
		// Terminal persistence failed; the broadcast event below is the
		// only record for anonymous jobs either way.
		o.logger.ErrorContext(ctx, "mark failed errored", "job_id", run.job.ID, "error", err)
	}

	if run.ch != nil {
		if err := run.ch.Failed(ctx, code, perr.Message); err != nil {
			o.logger.WarnContext(ctx, "failed publish errored", "job_id", run.job.ID, "error", err)
		}
	}

	if o.metrics != nil {
		o.metrics.JobFailed(code)
	}
	if o.notifier != nil {
		o.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      run.job.ID,
			OwnerID:    ownerLabel(run.job),
			Mode:       string(run.job.Mode),
			Stage:      string(failedAt),
			ErrorCode:  code,
			Error:      perr.Message,
			OccurredAt: time.Now(),
			Metadata: map[string]string{
				"files": strconv.Itoa(len(run.job.Files)),
			},
		})
	}
	o.logger.ErrorContext(ctx, "job failed",
		"job_id", run.job.ID,
		"stage", failedAt,
		"error_code", code,
		"error", cause,
	)
}

// results returns the documents assembled by the synthesizing stage.
func (r *jobRun) results() []model.Result {
	return r.finalResults
}

func ownerLabel(job *model.Job) string {
	if job.OwnerID == nil {
		return ""
	}
	return *job.OwnerID
}

// markFile updates a file's stage both in memory and in the store.
func (o *Orchestrator) markFile(ctx context.Context, run *jobRun, f *model.JobFile, stage model.FileStage, errorCode *string) error {
	f.Stage = stage
	f.ErrorCode = errorCode
	return o.persist(ctx, run, fmt.Sprintf("update file %s stage", f.ID), func() error {
		return o.jobs.UpdateFileStage(ctx, f.ID, stage, errorCode)
	})
}
