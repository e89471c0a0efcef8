package notify

import (
	"context"
	"log/slog"
	"sync"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// routineCodes are input-validation failures users fix themselves; paging an
// operator for them is noise.
var routineCodes = map[string]bool{
	string(errs.KindInvalidFormat):    true,
	string(errs.KindFileTooLarge):     true,
	string(errs.KindEmptyFile):        true,
	string(errs.KindDurationExceeded): true,
}

// SinkRegistration pairs a sink implementation with a human-readable name
// for logging.
type SinkRegistration struct {
	Name string
	Sink Sink
}

// Options configures the failure notifier.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Notifier dispatches failure events to all registered sinks.
type Notifier struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewNotifier constructs a failure notifier.
func NewNotifier(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Notifier{
		logger: logger,
		sinks:  sinks,
	}
}

// NotifyJobFailure fans the job failure payload out to all sinks.
func (n *Notifier) NotifyJobFailure(ctx context.Context, payload JobFailurePayload) {
	if len(n.sinks) == 0 {
		return
	}

	if routineCodes[payload.ErrorCode] {
		n.logger.DebugContext(ctx, "skipping notification for input-validation failure",
			"job_id", payload.JobID,
			"error_code", payload.ErrorCode,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range n.sinks {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				n.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"error_code", payload.ErrorCode,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (n *Notifier) Enabled() bool {
	return len(n.sinks) > 0
}
