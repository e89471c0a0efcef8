package model

// ProgressEvent is an ephemeral snapshot of a running job, published on the
// job's broadcast channel and never stored. Percentage is monotonically
// non-decreasing across a job's run.
type ProgressEvent struct {
	Percentage int            `json:"percentage"`
	Stage      Stage          `json:"stage"`
	Message    string         `json:"message"`
	Files      []FileProgress `json:"files"`
}

// FileProgress is the per-file slice of a ProgressEvent.
type FileProgress struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Stage       FileStage `json:"stage"`
	ErrorCode   *string   `json:"error_code,omitempty"`
}

// FileProgressSnapshot captures the current per-file state of a job for
// inclusion in a ProgressEvent.
func FileProgressSnapshot(files []*JobFile) []FileProgress {
	out := make([]FileProgress, 0, len(files))
	for _, f := range files {
		out = append(out, FileProgress{
			ID:          f.ID,
			DisplayName: f.DisplayName,
			Stage:       f.Stage,
			ErrorCode:   f.ErrorCode,
		})
	}
	return out
}
