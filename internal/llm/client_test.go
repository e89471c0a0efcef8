package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// sleepRecorder captures backoff waits without actually waiting.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestClient(t *testing.T, url string, rec *sleepRecorder) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:              url,
		SystemAPIKey:         "sk-system",
		CompletionModel:      "gpt-4o-mini",
		TranscriptionModel:   "whisper-1",
		MaxTokens:            1024,
		MaxRetries:           3,
		RetryBaseDelay:       time.Second,
		RetryMaxDelay:        30 * time.Second,
		CompletionTimeout:    5 * time.Second,
		TranscriptionTimeout: 10 * time.Second,
		Sleep:                rec.sleep,
		Rand:                 func() float64 { return 0 },
	})
}

const completionBody = `{
	"model": "gpt-4o-mini",
	"choices": [{"message": {"content": "generated document"}}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func TestCompleteSuccessAfterTwoFailures(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	res, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "generated document", res.Content)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 30, res.Usage.TotalTokens)

	assert.Equal(t, int32(3), attempts.Load(), "two failures then one success is exactly three attempts")
	assert.Len(t, rec.waits, 2)
}

func TestCompleteExhaustsRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindProviderUnavailable, errs.KindOf(err))
	assert.Equal(t, int32(4), attempts.Load(), "1 initial + 3 retries")
	assert.Len(t, rec.waits, 3)
}

func TestZeroConfigDefaultsToThreeRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := NewClient(Config{
		BaseURL:      srv.URL,
		SystemAPIKey: "sk-system",
		Sleep:        rec.sleep,
		Rand:         func() float64 { return 0 },
	})

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, int32(4), attempts.Load(), "default retry policy is 1 initial + 3 retries")
}

func TestBackoffScheduleGrowsExponentially(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	require.Len(t, rec.waits, 3)
	assert.Equal(t, 1*time.Second, rec.waits[0])
	assert.Equal(t, 2*time.Second, rec.waits[1])
	assert.Equal(t, 4*time.Second, rec.waits[2])
}

func TestRateLimitHonorsRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.NoError(t, err)
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 5*time.Second, rec.waits[0], "Retry-After hint overrides the exponential default")
}

func TestRateLimitExhaustionSurfacesRateLimitKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimited, errs.KindOf(err),
		"exhausted rate limiting is distinct from generic unavailability")
}

func TestQuotaExhaustedFailsFast(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"message": "You exceeded your quota", "code": "insufficient_quota"}}`)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindQuotaExhausted, errs.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestUnauthorizedFailsImmediately(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Transcribe(context.Background(), []byte("audio"), "audio/mpeg", Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidCredentials, errs.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load(), "credential rejection must not be retried")
	assert.Empty(t, rec.waits)
}

func TestBadRequestCarriesOperationKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "Unrecognized file format."}}`)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	_, err := c.Transcribe(context.Background(), []byte("audio"), "audio/mpeg", Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindTranscriptionFailed, errs.KindOf(err))

	_, err = c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindSynthesisFailed, errs.KindOf(err))
}

func TestCredentialFallback(t *testing.T) {
	t.Parallel()

	var authHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	// Caller-supplied credential wins.
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{APIKey: "sk-user"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-user", authHeader.Load())

	// Falls back to the system-wide credential.
	_, err = c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-system", authHeader.Load())
}

func TestMissingCredentialFailsWithoutRequest(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidCredentials, errs.KindOf(err))
	assert.Equal(t, int32(0), attempts.Load())
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	t.Parallel()

	var gotModel, gotFormat, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		gotFile = header.Filename
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text": "hello from the recording"}`)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(t, srv.URL, rec)

	res, err := c.Transcribe(context.Background(), []byte("audio-bytes"), "audio/mpeg", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello from the recording", res.Content)
	assert.Equal(t, "whisper-1", res.Model)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "json", gotFormat)
	assert.Equal(t, "audio.mp3", gotFile)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d, ok := parseRetryAfter("5", now)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok = parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now)
	require.True(t, ok)
	assert.InDelta(t, float64(90*time.Second), float64(d), float64(time.Second))

	// A date in the past means "retry now", not a negative wait.
	d, ok = parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), d)

	_, ok = parseRetryAfter("", now)
	assert.False(t, ok)
	_, ok = parseRetryAfter("soon", now)
	assert.False(t, ok)
}
