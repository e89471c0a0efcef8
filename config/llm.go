package config

import (
	"strings"
	"time"
)

// LLMConfig configures the external generation/transcription provider and the
// retry policy the resilient client applies to it.
type LLMConfig struct {
	// BaseURL is the provider's API root (OpenAI-compatible).
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	// APIKey is the system-wide credential used when a job's owner has not
	// saved their own.
	APIKey string `env:"API_KEY"`

	CompletionModel    string `env:"COMPLETION_MODEL"    envDefault:"gpt-4o-mini"`
	TranscriptionModel string `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`

	// MaxTokens bounds the token budget for one generation call.
	MaxTokens int `env:"MAX_TOKENS" envDefault:"4096"`

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
	// RetryBaseDelay seeds the exponential backoff schedule.
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	// RetryMaxDelay caps a single backoff wait.
	RetryMaxDelay time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`

	// CompletionTimeout bounds one text-generation attempt. Transcription gets
	// a longer bound: payloads are larger and models slower on audio.
	CompletionTimeout    time.Duration `env:"COMPLETION_TIMEOUT"    envDefault:"60s"`
	TranscriptionTimeout time.Duration `env:"TRANSCRIPTION_TIMEOUT" envDefault:"5m"`
}

// Sanitize normalises provider configuration and enforces safe bounds.
func (c *LLMConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = 60 * time.Second
	}
	if c.TranscriptionTimeout < c.CompletionTimeout {
		c.TranscriptionTimeout = 5 * time.Minute
	}
}
