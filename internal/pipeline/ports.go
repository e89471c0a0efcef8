// Package pipeline drives claimed jobs through the fixed stage sequence,
// broadcasting progress and persisting state along the way.
package pipeline

import (
	"context"

	"github.com/smeltapp/smeltd/internal/audio"
	"github.com/smeltapp/smeltd/internal/domain/model"
	"github.com/smeltapp/smeltd/internal/llm"
	"github.com/smeltapp/smeltd/internal/observability/notify"
)

// LLMClient is the provider surface the stages call. Satisfied by
// *llm.Client.
type LLMClient interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.CallResult, error)
	Transcribe(ctx context.Context, data []byte, mimeType string, opts llm.Options) (*llm.CallResult, error)
}

// AudioPreparer validates and transcodes audio inputs. Satisfied by
// *audio.Preparer.
type AudioPreparer interface {
	Validate(meta audio.FileMeta) (audio.Format, string, error)
	Transcode(ctx context.Context, data []byte, format audio.Format) (*audio.TranscodeResult, error)
}

// EventChannel is one job's open broadcast channel. Satisfied by
// *broadcast.Channel.
type EventChannel interface {
	Progress(ctx context.Context, event model.ProgressEvent) error
	Completed(ctx context.Context, results []model.Result) error
	Failed(ctx context.Context, code, message string) error
	Close()
}

// ChannelOpener opens a job's broadcast channel.
type ChannelOpener interface {
	Open(ctx context.Context, jobID string) (EventChannel, error)
}

// PromptLoader returns prompt bodies for the given ids. Satisfied by
// *core.PromptCacheService.
type PromptLoader interface {
	GetByIDs(ctx context.Context, ids []string) ([]*model.Prompt, error)
}

// ProgressSink accepts intra-stage completion fractions in [0, 1]. Stage
// code reports through this and never learns the transport behind it.
type ProgressSink interface {
	AcceptProgress(fraction float64)
}

type sinkFunc func(float64)

func (f sinkFunc) AcceptProgress(fraction float64) { f(fraction) }

// MetricsSink receives pipeline lifecycle measurements. Implementations must
// not block.
type MetricsSink interface {
	JobCompleted(duration float64)
	JobFailed(kind string)
	StageDuration(stage string, duration float64)
}

// FailureNotifier alerts operators about failed jobs. Satisfied by
// *notify.Notifier.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}
