package config

import "time"

// PipelineConfig configures the job pipeline and audio preparation gates.
type PipelineConfig struct {
	// Workers bounds how many jobs the intake runner processes concurrently.
	Workers int `env:"PIPELINE_WORKERS" envDefault:"4"`
	// PollInterval is the backstop poll for queued jobs when no LISTEN/NOTIFY
	// wakeup arrives.
	PollInterval time.Duration `env:"PIPELINE_POLL_INTERVAL" envDefault:"15s"`
	// SettleDelay is the pause between opening a job's broadcast channel and
	// the first published event, giving just-connected subscribers time to
	// attach.
	SettleDelay time.Duration `env:"PIPELINE_SETTLE_DELAY" envDefault:"500ms"`
	// BroadcastOpenTimeout bounds the wait for the realtime channel to become
	// ready to accept publishes.
	BroadcastOpenTimeout time.Duration `env:"PIPELINE_BROADCAST_OPEN_TIMEOUT" envDefault:"5s"`

	// MaxFileSizeBytes is the upload ceiling checked before any expensive work.
	MaxFileSizeBytes int64 `env:"PIPELINE_MAX_FILE_SIZE_BYTES" envDefault:"26214400"` // 25 MiB
	// MaxDurationSeconds is the audio length ceiling checked before transcoding.
	MaxDurationSeconds float64 `env:"PIPELINE_MAX_DURATION_SECONDS" envDefault:"1800"` // 30 minutes

	FFmpegPath  string `env:"PIPELINE_FFMPEG_PATH"  envDefault:"ffmpeg"`
	FFprobePath string `env:"PIPELINE_FFPROBE_PATH" envDefault:"ffprobe"`
}

// Sanitize enforces safe pipeline bounds.
func (c *PipelineConfig) Sanitize() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.BroadcastOpenTimeout <= 0 {
		c.BroadcastOpenTimeout = 5 * time.Second
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = 25 << 20
	}
	if c.MaxDurationSeconds <= 0 {
		c.MaxDurationSeconds = 1800
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
}
