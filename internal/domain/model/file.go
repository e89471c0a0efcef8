package model

// FileKind distinguishes uploaded audio from pasted text.
type FileKind string

// FileStage is the coarse per-file status mirrored from the job's stage.
type FileStage string

const (
	// FileKindAudio is an uploaded audio file.
	FileKindAudio FileKind = "audio"
	// FileKindText is a block of pasted text.
	FileKindText FileKind = "text"

	// FileStagePending indicates the file has not been touched yet.
	FileStagePending FileStage = "pending"
	// FileStageProcessing indicates the current pipeline stage is working on the file.
	FileStageProcessing FileStage = "processing"
	// FileStageCompleted indicates the file made it through its last stage.
	FileStageCompleted FileStage = "completed"
	// FileStageFailed indicates the file (or its job) failed.
	FileStageFailed FileStage = "failed"
)

// Valid returns true if the FileKind is recognized.
func (k FileKind) Valid() bool {
	return k == FileKindAudio || k == FileKindText
}

// Valid returns true if the FileStage is recognized.
func (s FileStage) Valid() bool {
	return s == FileStagePending || s == FileStageProcessing ||
		s == FileStageCompleted || s == FileStageFailed
}

// JobFile is one input unit belonging to a Job: an audio file or a block of
// pasted text. Audio payloads are held in the durable store until the job
// reaches a terminal stage.
type JobFile struct {
	ID              string    `json:"id"                         db:"id"`
	JobID           string    `json:"job_id"                     db:"job_id"`
	Kind            FileKind  `json:"kind"                       db:"kind"`
	DisplayName     string    `json:"display_name"               db:"display_name"`
	MimeType        string    `json:"mime_type"                  db:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"                 db:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Stage           FileStage `json:"stage"                      db:"stage"`
	ErrorCode       *string   `json:"error_code,omitempty"       db:"error_code"`
	Position        int       `json:"position"                   db:"position"`

	// Content is the raw audio payload for FileKindAudio files.
	Content []byte `json:"-" db:"content"`
	// Text is the pasted content for FileKindText files.
	Text string `json:"-" db:"text_content"`
}
