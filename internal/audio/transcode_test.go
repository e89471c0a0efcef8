package audio

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// fakeRunner simulates ffprobe/ffmpeg invocations in order.
type fakeRunner struct {
	t    *testing.T
	run  func(ctx context.Context, call int, name string, args ...string) (commandResult, error)
	call int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.call++
	return f.run(ctx, f.call, name, args...)
}

func newFakePreparer(t *testing.T, runner *fakeRunner) *Preparer {
	t.Helper()
	p := NewPreparer(PreparerConfig{
		MaxFileSizeBytes:   25 << 20,
		MaxDurationSeconds: 1800,
		TempDir:            t.TempDir(),
	})
	p.runner = runner
	return p
}

func TestTranscodeSuccess(t *testing.T) {
	t.Parallel()

	var scratchDir string
	runner := &fakeRunner{t: t}
	runner.run = func(_ context.Context, call int, name string, args ...string) (commandResult, error) {
		switch call {
		case 1:
			require.Equal(t, "ffprobe", name)
			inPath := args[len(args)-1]
			require.True(t, strings.HasSuffix(inPath, "input.wav"), "probe target: %s", inPath)
			scratchDir = strings.TrimSuffix(inPath, "/input.wav")
			return commandResult{Stdout: "123.45\n"}, nil
		case 2:
			require.Equal(t, "ffmpeg", name)
			assert.Contains(t, args, "-ar")
			assert.Contains(t, args, "16000")
			assert.Contains(t, args, "-ac")
			outPath := args[len(args)-1]
			require.NoError(t, os.WriteFile(outPath, []byte("canonical-mp3"), 0o600))
			return commandResult{}, nil
		default:
			t.Fatalf("unexpected command call %d", call)
			return commandResult{}, nil
		}
	}

	p := newFakePreparer(t, runner)
	res, err := p.Transcode(context.Background(), []byte("wav-bytes"), FormatWAV)
	require.NoError(t, err)
	assert.Equal(t, []byte("canonical-mp3"), res.Data)
	assert.InDelta(t, 123.45, res.DurationSeconds, 0.001)

	// Scratch space is removed on success.
	_, statErr := os.Stat(scratchDir)
	assert.True(t, os.IsNotExist(statErr), "scratch dir %s should be gone", scratchDir)
}

func TestTranscodeRejectsLongAudioBeforeConverting(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{t: t}
	runner.run = func(_ context.Context, call int, name string, _ ...string) (commandResult, error) {
		require.Equal(t, 1, call, "duration gate must run before ffmpeg")
		require.Equal(t, "ffprobe", name)
		return commandResult{Stdout: "2400.0"}, nil
	}

	p := newFakePreparer(t, runner)
	_, err := p.Transcode(context.Background(), []byte("bytes"), FormatMP3)
	require.Error(t, err)
	assert.Equal(t, errs.KindDurationExceeded, errs.KindOf(err))
	assert.Equal(t, 1, runner.call, "ffmpeg must not run for over-limit audio")
}

func TestTranscodeCorruptedInput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{t: t}
	runner.run = func(_ context.Context, _ int, _ string, _ ...string) (commandResult, error) {
		return commandResult{Stderr: "invalid data found when processing input", ExitCode: 1},
			errors.New("exit status 1")
	}

	p := newFakePreparer(t, runner)
	_, err := p.Transcode(context.Background(), []byte("junk"), FormatOGG)
	require.Error(t, err)
	assert.Equal(t, errs.KindEmptyFile, errs.KindOf(err))
}

func TestTranscodeFfmpegFailureCleansUp(t *testing.T) {
	t.Parallel()

	var scratchDir string
	runner := &fakeRunner{t: t}
	runner.run = func(_ context.Context, call int, _ string, args ...string) (commandResult, error) {
		switch call {
		case 1:
			inPath := args[len(args)-1]
			scratchDir = strings.TrimSuffix(inPath, "/input.m4a")
			return commandResult{Stdout: "60.0"}, nil
		default:
			return commandResult{Stderr: "encoder not found", ExitCode: 1}, errors.New("exit status 1")
		}
	}

	p := newFakePreparer(t, runner)
	_, err := p.Transcode(context.Background(), []byte("bytes"), FormatM4A)
	require.Error(t, err)
	assert.Equal(t, errs.KindTranscodeFailed, errs.KindOf(err))

	_, statErr := os.Stat(scratchDir)
	assert.True(t, os.IsNotExist(statErr), "scratch dir must be removed on failure too")
}

func TestProbeUnparseableDuration(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{t: t}
	runner.run = func(_ context.Context, _ int, _ string, _ ...string) (commandResult, error) {
		return commandResult{Stdout: "N/A"}, nil
	}

	p := newFakePreparer(t, runner)
	_, err := p.Transcode(context.Background(), []byte("bytes"), FormatMP3)
	require.Error(t, err)
	assert.Equal(t, errs.KindEmptyFile, errs.KindOf(err))
}
