package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTransitions(t *testing.T) {
	t.Parallel()

	path := []Stage{StagePending, StageValidating, StageDecoding, StageTranscribing, StageSynthesizing, StageCompleted}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
	}

	// No skipping, no going back.
	assert.False(t, StagePending.CanTransition(StageDecoding))
	assert.False(t, StageTranscribing.CanTransition(StageValidating))
	assert.False(t, StageDecoding.CanTransition(StageDecoding))

	// Failed is reachable from any non-terminal stage.
	for _, s := range path[:len(path)-1] {
		assert.True(t, s.CanTransition(StageFailed), "%s -> failed", s)
	}

	// Terminal stages never move again.
	assert.False(t, StageCompleted.CanTransition(StageFailed))
	assert.False(t, StageFailed.CanTransition(StageValidating))
	assert.False(t, StageFailed.CanTransition(StageFailed))
}

func TestStageIndexContiguous(t *testing.T) {
	t.Parallel()

	want := 0
	for _, s := range []Stage{StagePending, StageValidating, StageDecoding, StageTranscribing, StageSynthesizing, StageCompleted} {
		assert.Equal(t, want, s.Index(), string(s))
		want++
	}
	assert.Equal(t, -1, StageFailed.Index())
}

func TestModeAndKindValidity(t *testing.T) {
	t.Parallel()

	assert.True(t, ModeSeparate.Valid())
	assert.True(t, ModeCombine.Valid())
	assert.False(t, Mode("bulk").Valid())

	assert.True(t, FileKindAudio.Valid())
	assert.True(t, FileKindText.Valid())
	assert.False(t, FileKind("video").Valid())
}

func TestJobAnonymous(t *testing.T) {
	t.Parallel()

	owner := "user-1"
	assert.True(t, (&Job{}).Anonymous())
	empty := ""
	assert.True(t, (&Job{OwnerID: &empty}).Anonymous())
	assert.False(t, (&Job{OwnerID: &owner}).Anonymous())
}

func TestJobViewMarshalSingleBranch(t *testing.T) {
	t.Parallel()

	view := JobView{
		JobID:  "job-1",
		Status: ViewStatusCompleted,
		Completed: &CompletedView{Results: []Result{
			{FileID: CombinedFileID, Title: "Summary", Content: "done", Model: "gpt-4o-mini"},
		}},
	}

	data, err := json.Marshal(view)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "completed")
	assert.NotContains(t, raw, "processing")
	assert.NotContains(t, raw, "failed")

	var back JobView
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, view.JobID, back.JobID)
	require.NotNil(t, back.Completed)
	assert.Equal(t, CombinedFileID, back.Completed.Results[0].FileID)
}

func TestJobViewMarshalRejectsAmbiguity(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(JobView{
		JobID:      "job-1",
		Status:     ViewStatusFailed,
		Failed:     &FailedView{ErrorCode: "internal_error"},
		Processing: &ProcessingView{},
	})
	assert.Error(t, err)

	_, err = json.Marshal(JobView{JobID: "job-1", Status: ViewStatusProcessing})
	assert.Error(t, err)
}

func TestViewForJob(t *testing.T) {
	t.Parallel()

	code := "file_too_large"
	msg := "The file is larger than 25 MB."
	failed := &Job{ID: "j1", Stage: StageFailed, ErrorCode: &code, ErrorMessage: &msg}
	v := ViewForJob(failed, nil)
	require.Equal(t, ViewStatusFailed, v.Status)
	require.NotNil(t, v.Failed)
	assert.Equal(t, code, v.Failed.ErrorCode)

	running := &Job{ID: "j2", Stage: StageTranscribing, Files: []*JobFile{
		{ID: "f1", DisplayName: "call.mp3", Stage: FileStageProcessing},
	}}
	v = ViewForJob(running, nil)
	require.Equal(t, ViewStatusProcessing, v.Status)
	require.NotNil(t, v.Processing)
	require.Len(t, v.Processing.Progress.Files, 1)
	assert.Equal(t, FileStageProcessing, v.Processing.Progress.Files[0].Stage)

	done := &Job{ID: "j3", Stage: StageCompleted}
	v = ViewForJob(done, []Result{{FileID: "f1", Title: "call.mp3", Content: "# Call"}})
	require.Equal(t, ViewStatusCompleted, v.Status)
	require.NotNil(t, v.Completed)
	require.Len(t, v.Completed.Results, 1)
	assert.Equal(t, "call.mp3", v.Completed.Results[0].Title)

	v = ViewForJob(done, nil)
	require.NotNil(t, v.Completed)
	assert.NotNil(t, v.Completed.Results, "completed branch always carries a results slice")
}
