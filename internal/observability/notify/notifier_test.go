package notify

import (
	"context"
	"errors"
	"testing"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

func TestNotifierNotifyJobFailure(t *testing.T) {
	ctx := context.Background()

	var received []JobFailurePayload
	n := NewNotifier(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: SinkFunc(func(ctx context.Context, payload JobFailurePayload) error {
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	n.NotifyJobFailure(ctx, JobFailurePayload{
		JobID:     "123",
		Stage:     "transcribing",
		ErrorCode: string(errs.KindProviderUnavailable),
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestNotifierDisabled(t *testing.T) {
	n := NewNotifier(Options{})
	if n.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestNotifierLogsErrors(t *testing.T) {
	// Ensure we don't panic when a sink returns an error.
	n := NewNotifier(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: SinkFunc(func(ctx context.Context, payload JobFailurePayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	n.NotifyJobFailure(context.Background(), JobFailurePayload{JobID: "123"})
}

func TestNotifierSkipsInputValidationFailures(t *testing.T) {
	ctx := context.Background()
	var called bool
	n := NewNotifier(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: SinkFunc(func(ctx context.Context, payload JobFailurePayload) error {
					called = true
					return nil
				}),
			},
		},
	})

	n.NotifyJobFailure(ctx, JobFailurePayload{
		JobID:     "user-error-job",
		ErrorCode: string(errs.KindFileTooLarge),
	})

	if called {
		t.Fatal("expected sink not to be invoked for an input-validation failure")
	}
}
