// Package llm wraps the external generation/transcription provider behind a
// resilient client: per-attempt timeouts, retry with exponential backoff and
// jitter, and rate-limit-aware delays. The provider is the single largest
// source of failure and latency variance in the system; centralizing the
// policy here keeps one flaky call from cascading into a job failure while
// still failing fast on non-retryable errors.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// maxErrorBodyBytes bounds how much of an error response body is read for
// classification and logging.
const maxErrorBodyBytes = 1 << 20

// Message is one chat turn sent to the generation endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options constrain one provider call. A zero value falls back to the
// client's configured defaults; an empty APIKey falls back to the system-wide
// credential.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Usage is the provider's token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallResult is the outcome of one successful provider invocation.
type CallResult struct {
	Content string
	Model   string
	Usage   *Usage
}

// Config configures the resilient client.
type Config struct {
	BaseURL      string
	SystemAPIKey string

	CompletionModel    string
	TranscriptionModel string
	MaxTokens          int

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CompletionTimeout    time.Duration
	TranscriptionTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger

	// Sleep is the wait primitive between attempts. Tests inject a recorder;
	// production uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand drives backoff jitter.
	Rand func() float64
}

// Client calls the external provider with retry, backoff, and rate-limit
// handling. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	randFloat  func() float64
}

// NewClient constructs a Client, filling in defaults for optional fields.
// Per-attempt timeouts are applied via request contexts, so the underlying
// http.Client carries no timeout of its own.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	randFloat := cfg.Rand
	if randFloat == nil {
		randFloat = rand.Float64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}
	if cfg.TranscriptionTimeout <= 0 {
		cfg.TranscriptionTimeout = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleep,
		randFloat:  randFloat,
	}
}

// Complete sends a chat-completion request and returns the generated content.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (*CallResult, error) {
	key, err := c.resolveKey(opts)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = c.cfg.CompletionModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	payload, err := json.Marshal(completionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	return c.do(ctx, callSpec{
		op:       "completion",
		failKind: errs.KindSynthesisFailed,
		timeout:  c.cfg.CompletionTimeout,
		build: func(actx context.Context) (*http.Request, error) {
			req, reqErr := http.NewRequestWithContext(
				actx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
			if reqErr != nil {
				return nil, reqErr
			}
			req.Header.Set("Authorization", "Bearer "+key)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
		parse: parseCompletion,
	})
}

// Transcribe sends audio to the transcription endpoint and returns the text.
// Transcription attempts get a longer timeout than completion: payloads are
// larger and models slower on audio.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string, opts Options) (*CallResult, error) {
	key, err := c.resolveKey(opts)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = c.cfg.TranscriptionModel
	}

	body, contentType, err := buildTranscriptionBody(audio, mimeType, model)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}

	return c.do(ctx, callSpec{
		op:       "transcription",
		failKind: errs.KindTranscriptionFailed,
		timeout:  c.cfg.TranscriptionTimeout,
		build: func(actx context.Context) (*http.Request, error) {
			req, reqErr := http.NewRequestWithContext(
				actx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(body))
			if reqErr != nil {
				return nil, reqErr
			}
			req.Header.Set("Authorization", "Bearer "+key)
			req.Header.Set("Content-Type", contentType)
			return req, nil
		},
		parse: func(data []byte) (*CallResult, error) {
			var out transcriptionResponse
			if parseErr := json.Unmarshal(data, &out); parseErr != nil {
				return nil, fmt.Errorf("decode transcription response: %w", parseErr)
			}
			return &CallResult{Content: out.Text, Model: model}, nil
		},
	})
}

func (c *Client) resolveKey(opts Options) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	if c.cfg.SystemAPIKey != "" {
		return c.cfg.SystemAPIKey, nil
	}
	return "", errs.New(errs.KindInvalidCredentials, "No API credential is configured. Add one in settings.")
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func parseCompletion(data []byte) (*CallResult, error) {
	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("completion response has no choices")
	}
	return &CallResult{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage:   out.Usage,
	}, nil
}

// buildTranscriptionBody assembles the multipart form the transcription
// endpoint expects: the audio payload, the model name, and a JSON response
// format.
func buildTranscriptionBody(audio []byte, mimeType, model string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileNameForMime(mimeType))
	if err != nil {
		return nil, "", err
	}
	if _, err = part.Write(audio); err != nil {
		return nil, "", err
	}
	if err = w.WriteField("model", model); err != nil {
		return nil, "", err
	}
	if err = w.WriteField("response_format", "json"); err != nil {
		return nil, "", err
	}
	if err = w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func fileNameForMime(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return "audio.mp3"
	case "audio/mp4":
		return "audio.m4a"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg":
		return "audio.ogg"
	case "audio/flac":
		return "audio.flac"
	default:
		return "audio.bin"
	}
}

// parseRetryAfter converts a Retry-After header value into a relative delay.
// Both the delta-seconds and HTTP-date forms are accepted.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
