package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTypedErrorPassesThrough(t *testing.T) {
	t.Parallel()

	typed := New(KindFileTooLarge, "The file is larger than 25 MB.")
	wrapped := fmt.Errorf("validate file: %w", typed)

	got := Classify(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, KindFileTooLarge, got.Kind)
	assert.Equal(t, "The file is larger than 25 MB.", got.Message)
}

func TestClassifyHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil-safe deadline", err: context.DeadlineExceeded, want: KindProviderUnavailable},
		{name: "canceled", err: context.Canceled, want: KindInternal},
		{name: "connection refused", err: errors.New("dial tcp 10.0.0.1:443: connection refused"), want: KindConnectionLost},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: KindConnectionLost},
		{name: "quota", err: errors.New("insufficient_quota: billing hard limit reached"), want: KindQuotaExhausted},
		{name: "rate limit", err: errors.New("Rate limit reached for requests"), want: KindRateLimited},
		{name: "bad key", err: errors.New("Incorrect API key provided"), want: KindInvalidCredentials},
		{name: "gateway", err: errors.New("upstream returned 502 Bad Gateway"), want: KindProviderUnavailable},
		{name: "unknown", err: errors.New("slice bounds out of range"), want: KindInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Kind)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Classify(nil))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindRateLimited, KindOf(fmt.Errorf("transcribe: %w", New(KindRateLimited, "busy"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsKind(New(KindEmptyFile, "empty"), KindEmptyFile))
}

func TestKindValid(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{
		KindInvalidFormat, KindFileTooLarge, KindEmptyFile, KindDurationExceeded,
		KindTranscodeFailed, KindTranscriptionFailed, KindSynthesisFailed,
		KindRateLimited, KindQuotaExhausted, KindInvalidCredentials,
		KindProviderUnavailable, KindConnectionLost, KindInternal,
	} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("surprise").Valid())
}
