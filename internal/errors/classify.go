package errors

import (
	"context"
	"errors"
	"strings"
)

// Classify maps any error onto the closed taxonomy. Errors that are already
// typed pass through unchanged; context timeouts map to provider
// unavailability; everything else falls back to message-substring heuristics
// and, failing those, KindInternal.
func Classify(err error) *PipelineError {
	if err == nil {
		return nil
	}

	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindProviderUnavailable, "The processing service timed out. Please try again.", err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindInternal, "Processing was interrupted.", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection refused", "connection reset", "broken pipe", "unexpected eof", "no such host"):
		return Wrap(KindConnectionLost, "Lost connection to the processing service.", err)
	case containsAny(msg, "insufficient_quota", "quota"):
		return Wrap(KindQuotaExhausted, "The account has run out of processing quota.", err)
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return Wrap(KindRateLimited, "The processing service is busy. Please try again shortly.", err)
	case containsAny(msg, "unauthorized", "invalid api key", "incorrect api key", "401", "403"):
		return Wrap(KindInvalidCredentials, "The API credential was rejected. Check your settings.", err)
	case containsAny(msg, "timeout", "deadline exceeded", "unavailable", "bad gateway", "service overloaded"):
		return Wrap(KindProviderUnavailable, "The processing service is unavailable. Please try again.", err)
	}

	return Wrap(KindInternal, "Something went wrong while processing. Please try again.", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
