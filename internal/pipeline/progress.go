package pipeline

import (
	"context"
	"math"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// band maps a stage onto its slice of the 0-100 progress range. Widths are
// proportional to typical wall time, with transcription dominating.
type band struct {
	start int
	width int
}

var stageBands = map[model.Stage]band{
	model.StageValidating:   {start: 0, width: 10},
	model.StageDecoding:     {start: 10, width: 10},
	model.StageTranscribing: {start: 20, width: 50},
	model.StageSynthesizing: {start: 70, width: 30},
}

var stageMessages = map[model.Stage]string{
	model.StageValidating:   "validating input files",
	model.StageDecoding:     "decoding audio",
	model.StageTranscribing: "transcribing audio",
	model.StageSynthesizing: "generating documents",
}

// bandPercent converts an intra-stage fraction into an overall percentage.
func bandPercent(stage model.Stage, fraction float64) int {
	b, ok := stageBands[stage]
	if !ok {
		return 0
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.start + int(math.Floor(fraction*float64(b.width)))
}

// emitProgress publishes a progress event for the job's current stage.
// Publishing is best-effort once the channel is open; failures are logged by
// the caller's channel implementation and never abort the job.
func (o *Orchestrator) emitProgress(ctx context.Context, run *jobRun, fraction float64) {
	event := model.ProgressEvent{
		Percentage: bandPercent(run.job.Stage, fraction),
		Stage:      run.job.Stage,
		Message:    stageMessages[run.job.Stage],
		Files:      model.FileProgressSnapshot(run.job.Files),
	}
	if err := run.ch.Progress(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "progress publish failed",
			"job_id", run.job.ID,
			"stage", run.job.Stage,
			"error", err,
		)
	}
}

// stageSink returns a ProgressSink that maps fractions into the job's
// current stage band.
func (o *Orchestrator) stageSink(ctx context.Context, run *jobRun) ProgressSink {
	return sinkFunc(func(fraction float64) {
		o.emitProgress(ctx, run, fraction)
	})
}
