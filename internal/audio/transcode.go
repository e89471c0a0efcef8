package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// commandResult captures one external command invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts external command execution so tests can simulate
// ffmpeg/ffprobe without the binaries.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
	return result, err
}

// PreparerConfig configures audio validation and transcoding.
type PreparerConfig struct {
	MaxFileSizeBytes   int64
	MaxDurationSeconds float64
	FFmpegPath         string
	FFprobePath        string
	// TempDir overrides the OS temp directory for transcode scratch space.
	TempDir string
	Logger  *slog.Logger
}

// Preparer validates and transcodes job audio. Safe for concurrent use: every
// transcode works in its own scratch directory.
type Preparer struct {
	maxFileSizeBytes   int64
	maxDurationSeconds float64
	ffmpeg             string
	ffprobe            string
	tempDir            string
	logger             *slog.Logger
	runner             commandRunner
}

// NewPreparer constructs a Preparer, filling in defaults for optional fields.
func NewPreparer(cfg PreparerConfig) *Preparer {
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 25 << 20
	}
	if cfg.MaxDurationSeconds <= 0 {
		cfg.MaxDurationSeconds = 1800
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		maxFileSizeBytes:   cfg.MaxFileSizeBytes,
		maxDurationSeconds: cfg.MaxDurationSeconds,
		ffmpeg:             cfg.FFmpegPath,
		ffprobe:            cfg.FFprobePath,
		tempDir:            cfg.TempDir,
		logger:             logger,
		runner:             execRunner{},
	}
}

// TranscodeResult is canonical audio plus its measured duration.
type TranscodeResult struct {
	Data            []byte
	DurationSeconds float64
}

// Transcode converts source audio to the canonical encoding (16 kHz mono
// 64 kbps MP3). Duration is probed first and checked against the ceiling
// before the costlier transcode runs. Scratch files are removed on every exit
// path; cleanup failures are logged, never raised.
func (p *Preparer) Transcode(ctx context.Context, data []byte, format Format) (*TranscodeResult, error) {
	dir, err := os.MkdirTemp(p.tempDir, "smelt-audio-")
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Could not allocate scratch space for audio conversion.", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.WarnContext(ctx, "failed to remove transcode scratch dir", "dir", dir, "error", rmErr)
		}
	}()

	inPath := filepath.Join(dir, "input"+format.Ext())
	if err = os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Could not stage the audio file for conversion.", err)
	}

	duration, err := p.probeFile(ctx, inPath)
	if err != nil {
		return nil, err
	}
	if duration > p.maxDurationSeconds {
		return nil, errs.Newf(errs.KindDurationExceeded,
			"The audio is %.0f minutes long; the limit is %.0f minutes.",
			duration/60, p.maxDurationSeconds/60)
	}

	outPath := filepath.Join(dir, "output.mp3")
	result, err := p.runner.Run(ctx, p.ffmpeg,
		"-y", "-i", inPath, "-vn", "-ac", "1", "-ar", "16000", "-b:a", "64k", "-f", "mp3", outPath)
	if err != nil || result.ExitCode != 0 {
		return nil, errs.Wrap(errs.KindTranscodeFailed, "The audio could not be converted.",
			fmt.Errorf("ffmpeg exit %d: %s", result.ExitCode, excerpt(result.Stderr)))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTranscodeFailed, "The audio could not be converted.", err)
	}
	if len(out) == 0 {
		return nil, errs.New(errs.KindTranscodeFailed, "The audio could not be converted.")
	}

	return &TranscodeResult{Data: out, DurationSeconds: duration}, nil
}

// probeFile measures a file's duration in seconds with ffprobe.
func (p *Preparer) probeFile(ctx context.Context, path string) (float64, error) {
	result, err := p.runner.Run(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil || result.ExitCode != 0 {
		return 0, errs.Wrap(errs.KindEmptyFile, "The audio file could not be read. It may be corrupted.",
			fmt.Errorf("ffprobe exit %d: %s", result.ExitCode, excerpt(result.Stderr)))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil || duration <= 0 {
		return 0, errs.Wrap(errs.KindEmptyFile, "The audio file could not be read. It may be corrupted.",
			fmt.Errorf("unparseable duration %q", strings.TrimSpace(result.Stdout)))
	}
	return duration, nil
}

// excerpt bounds command stderr for error wrapping.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
