package model

import (
	"encoding/json"
	"errors"
)

// JobView is the tagged variant a reader of job state decodes: exactly one of
// the three payload branches is populated, selected by Status. This replaces
// the single-struct-with-nullable-fields shape: a consumer can switch on
// Status and trust the matching branch is present.
type JobView struct {
	JobID  string
	Status ViewStatus

	Processing *ProcessingView
	Completed  *CompletedView
	Failed     *FailedView
}

// ViewStatus tags which JobView branch is active.
type ViewStatus string

const (
	// ViewStatusProcessing carries a ProcessingView.
	ViewStatusProcessing ViewStatus = "processing"
	// ViewStatusCompleted carries a CompletedView.
	ViewStatusCompleted ViewStatus = "completed"
	// ViewStatusFailed carries a FailedView.
	ViewStatusFailed ViewStatus = "failed"
)

// ProcessingView describes an in-flight job.
type ProcessingView struct {
	Progress ProgressEvent `json:"progress"`
}

// CompletedView describes a finished job and its generated documents.
type CompletedView struct {
	Results []Result `json:"results"`
}

// FailedView describes a terminally failed job.
type FailedView struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// ErrAmbiguousView is returned when a JobView does not have exactly one
// populated branch matching its status tag.
var ErrAmbiguousView = errors.New("job view must have exactly one branch matching its status")

type jobViewEnvelope struct {
	JobID      string          `json:"job_id"`
	Status     ViewStatus      `json:"status"`
	Processing *ProcessingView `json:"processing,omitempty"`
	Completed  *CompletedView  `json:"completed,omitempty"`
	Failed     *FailedView     `json:"failed,omitempty"`
}

// MarshalJSON enforces the tagged-variant invariant at the wire boundary.
func (v JobView) MarshalJSON() ([]byte, error) {
	env := jobViewEnvelope{JobID: v.JobID, Status: v.Status}
	switch v.Status {
	case ViewStatusProcessing:
		if v.Processing == nil || v.Completed != nil || v.Failed != nil {
			return nil, ErrAmbiguousView
		}
		env.Processing = v.Processing
	case ViewStatusCompleted:
		if v.Completed == nil || v.Processing != nil || v.Failed != nil {
			return nil, ErrAmbiguousView
		}
		env.Completed = v.Completed
	case ViewStatusFailed:
		if v.Failed == nil || v.Processing != nil || v.Completed != nil {
			return nil, ErrAmbiguousView
		}
		env.Failed = v.Failed
	default:
		return nil, ErrAmbiguousView
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the envelope and re-checks the variant invariant.
func (v *JobView) UnmarshalJSON(data []byte) error {
	var env jobViewEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	out := JobView{
		JobID:      env.JobID,
		Status:     env.Status,
		Processing: env.Processing,
		Completed:  env.Completed,
		Failed:     env.Failed,
	}
	if _, err := out.MarshalJSON(); err != nil {
		return err
	}
	*v = out
	return nil
}

// ViewForJob projects a job's durable state into the tagged variant, with
// the job's stored results for the completed branch. Progress for in-flight
// jobs reflects stage only; live percentages come from the broadcast
// channel, not the store.
func ViewForJob(job *Job, results []Result) JobView {
	switch job.Stage {
	case StageCompleted:
		if results == nil {
			results = []Result{}
		}
		return JobView{JobID: job.ID, Status: ViewStatusCompleted, Completed: &CompletedView{Results: results}}
	case StageFailed:
		fv := &FailedView{}
		if job.ErrorCode != nil {
			fv.ErrorCode = *job.ErrorCode
		}
		if job.ErrorMessage != nil {
			fv.ErrorMessage = *job.ErrorMessage
		}
		return JobView{JobID: job.ID, Status: ViewStatusFailed, Failed: fv}
	default:
		return JobView{
			JobID:  job.ID,
			Status: ViewStatusProcessing,
			Processing: &ProcessingView{Progress: ProgressEvent{
				Stage:   job.Stage,
				Files:   FileProgressSnapshot(job.Files),
				Message: "Processing",
			}},
		}
	}
}
