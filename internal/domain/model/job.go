// Package model defines the core data types shared across the smelt
// processing pipeline.
package model

import (
	"errors"
	"time"
)

// Stage represents a job's position in the fixed processing pipeline.
type Stage string

// Mode controls how transcripts are synthesized into documents.
type Mode string

const (
	// StagePending indicates a job accepted but not yet started.
	StagePending Stage = "pending"
	// StageValidating indicates input files are being checked.
	StageValidating Stage = "validating"
	// StageDecoding indicates audio is being converted to the canonical format.
	StageDecoding Stage = "decoding"
	// StageTranscribing indicates audio is being turned into text.
	StageTranscribing Stage = "transcribing"
	// StageSynthesizing indicates documents are being generated from transcripts.
	StageSynthesizing Stage = "synthesizing"
	// StageCompleted indicates the job finished and results were stored.
	StageCompleted Stage = "completed"
	// StageFailed indicates the job terminated with a classified error.
	StageFailed Stage = "failed"

	// ModeSeparate produces one document per input file.
	ModeSeparate Mode = "separate"
	// ModeCombine merges all transcripts into a single document.
	ModeCombine Mode = "combine"
)

// ErrNoJobsQueued is returned when no queued jobs are available to claim.
var ErrNoJobsQueued = errors.New("no jobs queued")

// stageOrder positions each non-failed stage on the pipeline's single path.
var stageOrder = map[Stage]int{
	StagePending:      0,
	StageValidating:   1,
	StageDecoding:     2,
	StageTranscribing: 3,
	StageSynthesizing: 4,
	StageCompleted:    5,
}

// Valid returns true if the Stage is a member of the pipeline.
func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether a job in this stage never transitions again.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Index returns the stage's position on the pipeline path, or -1 for failed.
func (s Stage) Index() int {
	if idx, ok := stageOrder[s]; ok {
		return idx
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the state
// machine: stages advance one step at a time along the single path, failed is
// reachable from any non-terminal stage, and terminal stages never move.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	from, okFrom := stageOrder[s]
	to, okTo := stageOrder[next]
	return okFrom && okTo && to == from+1
}

// Valid returns true if the Mode is recognized.
func (m Mode) Valid() bool {
	return m == ModeSeparate || m == ModeCombine
}

// Job is one user-submitted unit of audio/text-to-document work. Jobs are
// created by the intake boundary in StagePending and mutated exclusively by
// the pipeline orchestrator thereafter.
type Job struct {
	ID           string     `json:"id"                      db:"id"`
	OwnerID      *string    `json:"owner_id,omitempty"      db:"owner_id"`
	Mode         Mode       `json:"mode"                    db:"mode"`
	PromptIDs    []string   `json:"prompt_ids"              db:"prompt_ids"`
	Stage        Stage      `json:"stage"                   db:"stage"`
	ErrorCode    *string    `json:"error_code,omitempty"    db:"error_code"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"  db:"completed_at"`

	Files []*JobFile `json:"files"`
}

// Anonymous reports whether the job has no durable owner. Status-update
// failures for anonymous jobs are logged and ignored: the broadcast channel
// is their only feedback path.
func (j *Job) Anonymous() bool {
	return j.OwnerID == nil || *j.OwnerID == ""
}

// Prompt is a saved instruction body applied during synthesis. Prompt CRUD
// and section organization live outside this subsystem; the pipeline only
// reads bodies.
type Prompt struct {
	ID    string `json:"id"    db:"id"`
	Title string `json:"title" db:"title"`
	Body  string `json:"body"  db:"body"`
}

// Result is one generated document produced by the synthesizing stage.
// FileID is "combined" for combine-mode output.
type Result struct {
	FileID  string `json:"file_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Model   string `json:"model"`
}

// CombinedFileID is the synthetic file identifier carried by combine-mode results.
const CombinedFileID = "combined"
