package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

// fakePublisher records publishes in order.
type fakePublisher struct {
	mu       sync.Mutex
	readyErr error
	pubErr   error
	messages []fakeMessage
}

type fakeMessage struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Ready(ctx context.Context) error {
	if f.readyErr != nil {
		return f.readyErr
	}
	return ctx.Err()
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, fakeMessage{channel: channel, payload: payload})
	return nil
}

func (f *fakePublisher) decoded(t *testing.T) []map[string]json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]json.RawMessage, 0, len(f.messages))
	for _, m := range f.messages {
		var env map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(m.payload, &env))
		out = append(out, env)
	}
	return out
}

func TestOpenPublishesOnJobChannel(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	b := New(Config{Publisher: pub, OpenTimeout: time.Second})

	ch, err := b.Open(context.Background(), "job-42")
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Progress(context.Background(), model.ProgressEvent{
		Percentage: 5, Stage: model.StageValidating, Message: "Checking files",
	}))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "job:job-42", pub.messages[0].channel)

	env := pub.decoded(t)[0]
	var typ string
	require.NoError(t, json.Unmarshal(env["type"], &typ))
	assert.Equal(t, "progress", typ)
}

func TestOpenFailsWhenProviderNotReady(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{readyErr: errors.New("redis down")}
	b := New(Config{Publisher: pub, OpenTimeout: 50 * time.Millisecond})

	_, err := b.Open(context.Background(), "job-1")
	require.Error(t, err)
}

func TestProgressPercentageClampedMonotonic(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	b := New(Config{Publisher: pub})
	ch, err := b.Open(context.Background(), "job-1")
	require.NoError(t, err)
	defer ch.Close()

	ctx := context.Background()
	for _, pct := range []int{0, 10, 35, 20, 70, 100} {
		require.NoError(t, ch.Progress(ctx, model.ProgressEvent{Percentage: pct, Stage: model.StageTranscribing}))
	}

	var last int
	for _, env := range pub.decoded(t) {
		var event model.ProgressEvent
		require.NoError(t, json.Unmarshal(env["data"], &event))
		assert.GreaterOrEqual(t, event.Percentage, last)
		last = event.Percentage
	}
	assert.Equal(t, 100, last)
}

func TestTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	b := New(Config{Publisher: pub})
	ctx := context.Background()

	ch, err := b.Open(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, ch.Completed(ctx, []model.Result{{FileID: "f1", Content: "doc"}}))
	require.NoError(t, ch.Failed(ctx, "rate_limited", "The processing service is busy."))
	ch.Close()

	envs := pub.decoded(t)
	require.Len(t, envs, 2)

	var typ string
	require.NoError(t, json.Unmarshal(envs[0]["type"], &typ))
	assert.Equal(t, "completed", typ)

	var failed struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	require.NoError(t, json.Unmarshal(envs[1]["type"], &typ))
	assert.Equal(t, "failed", typ)
	require.NoError(t, json.Unmarshal(envs[1]["data"], &failed))
	assert.Equal(t, "rate_limited", failed.ErrorCode)
	assert.NotEmpty(t, failed.ErrorMessage)
}

func TestCompletedWithNoResultsPublishesEmptySlice(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	b := New(Config{Publisher: pub})
	ctx := context.Background()

	ch, err := b.Open(ctx, "job-1")
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.Completed(ctx, nil))

	var payload struct {
		Results []model.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(pub.decoded(t)[0]["data"], &payload))
	assert.NotNil(t, payload.Results)
	assert.Empty(t, payload.Results)
}

func TestCloseIsIdempotentAndStopsPublishes(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	b := New(Config{Publisher: pub})
	ch, err := b.Open(context.Background(), "job-1")
	require.NoError(t, err)

	ch.Close()
	ch.Close() // second close is a no-op

	err = ch.Progress(context.Background(), model.ProgressEvent{Percentage: 1})
	require.Error(t, err)
	assert.Empty(t, pub.messages)
}
