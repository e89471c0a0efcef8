package pipeline

import (
	"context"
	"strings"

	"github.com/smeltapp/smeltd/internal/audio"
	"github.com/smeltapp/smeltd/internal/domain/model"
	errs "github.com/smeltapp/smeltd/internal/errors"
	"github.com/smeltapp/smeltd/internal/llm"
)

// validateFiles checks every input against the intake gates. Text files pass
// untouched; the first failing file fails the job.
func (o *Orchestrator) validateFiles(ctx context.Context, run *jobRun) error {
	for _, f := range run.job.Files {
		if f.Kind != model.FileKindAudio {
			continue
		}
		if err := o.markFile(ctx, run, f, model.FileStageProcessing, nil); err != nil {
			return err
		}

		format, _, err := o.audio.Validate(audio.FileMeta{
			Name:      f.DisplayName,
			MimeType:  f.MimeType,
			SizeBytes: f.SizeBytes,
		})
		if err != nil {
			code := string(errs.KindOf(err))
			if markErr := o.markFile(ctx, run, f, model.FileStageFailed, &code); markErr != nil {
				return markErr
			}
			return err
		}
		run.formats[f.ID] = format
	}
	return nil
}

// decodeFiles transcodes every audio file to the canonical format, recording
// the probed duration. Text files are a no-op.
func (o *Orchestrator) decodeFiles(ctx context.Context, run *jobRun) error {
	audioFiles := run.audioFiles()
	sink := o.stageSink(ctx, run)

	for i, f := range audioFiles {
		sink.AcceptProgress(float64(i) / float64(len(audioFiles)))

		result, err := o.audio.Transcode(ctx, f.Content, run.formats[f.ID])
		if err != nil {
			code := string(errs.KindOf(err))
			if markErr := o.markFile(ctx, run, f, model.FileStageFailed, &code); markErr != nil {
				return markErr
			}
			return err
		}

		f.Content = result.Data
		f.MimeType = audio.CanonicalMimeType
		f.DurationSeconds = &result.DurationSeconds
		if err := o.persist(ctx, run, "update file duration", func() error {
			return o.jobs.UpdateFileDuration(ctx, f.ID, result.DurationSeconds)
		}); err != nil {
			return err
		}
	}
	return nil
}

// transcribeFiles turns each file into transcript text, sequentially in file
// order. Text inputs pass through at zero provider cost.
func (o *Orchestrator) transcribeFiles(ctx context.Context, run *jobRun) error {
	files := run.job.Files
	sink := o.stageSink(ctx, run)

	for i, f := range files {
		sink.AcceptProgress(float64(i) / float64(len(files)))

		if f.Kind == model.FileKindText {
			run.transcripts[f.ID] = f.Text
			if err := o.markFile(ctx, run, f, model.FileStageCompleted, nil); err != nil {
				return err
			}
			continue
		}

		result, err := o.client.Transcribe(ctx, f.Content, f.MimeType, llm.Options{APIKey: run.apiKey})
		if err != nil {
			code := string(errs.KindOf(err))
			if markErr := o.markFile(ctx, run, f, model.FileStageFailed, &code); markErr != nil {
				return markErr
			}
			return err
		}

		run.transcripts[f.ID] = result.Content
		if err := o.markFile(ctx, run, f, model.FileStageCompleted, nil); err != nil {
			return err
		}
	}

	sink.AcceptProgress(1)
	return nil
}

// synthesize turns transcripts into final documents according to the job's
// mode and selected prompts.
func (o *Orchestrator) synthesize(ctx context.Context, run *jobRun) error {
	prompts, err := o.loadPrompts(ctx, run)
	if err != nil {
		return err
	}

	// With no prompts selected the transcripts are the documents; the
	// provider is never called.
	if len(prompts) == 0 {
		run.finalResults = o.passthroughResults(run)
		return nil
	}

	system := promptSystemMessage(prompts)

	if run.job.Mode == model.ModeCombine {
		result, callErr := o.client.Complete(ctx, []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: combinedTranscript(run)},
		}, llm.Options{APIKey: run.apiKey})
		if callErr != nil {
			return callErr
		}
		run.finalResults = []model.Result{{
			FileID:  model.CombinedFileID,
			Title:   "Combined document",
			Content: result.Content,
			Model:   result.Model,
		}}
		return nil
	}

	sink := o.stageSink(ctx, run)
	for i, f := range run.job.Files {
		sink.AcceptProgress(float64(i) / float64(len(run.job.Files)))

		result, callErr := o.client.Complete(ctx, []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: run.transcripts[f.ID]},
		}, llm.Options{APIKey: run.apiKey})
		if callErr != nil {
			return callErr
		}
		run.finalResults = append(run.finalResults, model.Result{
			FileID:  f.ID,
			Title:   f.DisplayName,
			Content: result.Content,
			Model:   result.Model,
		})
	}
	return nil
}

// loadPrompts resolves the job's selected prompt bodies, preserving order.
func (o *Orchestrator) loadPrompts(ctx context.Context, run *jobRun) ([]*model.Prompt, error) {
	if len(run.job.PromptIDs) == 0 {
		return nil, nil
	}
	prompts, err := o.prompts.GetByIDs(ctx, run.job.PromptIDs)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "load prompts", err)
	}
	return prompts, nil
}

// passthroughResults emits raw transcripts as documents, honoring the mode.
func (o *Orchestrator) passthroughResults(run *jobRun) []model.Result {
	if run.job.Mode == model.ModeCombine {
		return []model.Result{{
			FileID:  model.CombinedFileID,
			Title:   "Combined document",
			Content: combinedTranscript(run),
		}}
	}
	results := make([]model.Result, 0, len(run.job.Files))
	for _, f := range run.job.Files {
		results = append(results, model.Result{
			FileID:  f.ID,
			Title:   f.DisplayName,
			Content: run.transcripts[f.ID],
		})
	}
	return results
}

// combinedTranscript concatenates all transcripts in file order, each under
// a heading naming its source file.
func combinedTranscript(run *jobRun) string {
	var b strings.Builder
	for i, f := range run.job.Files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(f.DisplayName)
		b.WriteString("\n\n")
		b.WriteString(run.transcripts[f.ID])
	}
	return b.String()
}

// promptSystemMessage joins the selected prompt bodies into one system turn.
func promptSystemMessage(prompts []*model.Prompt) string {
	bodies := make([]string, 0, len(prompts))
	for _, p := range prompts {
		bodies = append(bodies, p.Body)
	}
	return strings.Join(bodies, "\n\n")
}

// audioFiles returns the job's audio inputs in position order.
func (r *jobRun) audioFiles() []*model.JobFile {
	var files []*model.JobFile
	for _, f := range r.job.Files {
		if f.Kind == model.FileKindAudio {
			files = append(files, f)
		}
	}
	return files
}
