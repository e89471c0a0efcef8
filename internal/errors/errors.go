// Package errors defines the closed failure taxonomy for the smelt pipeline.
//
// Every failure that reaches a job's terminal handler is mapped onto exactly
// one Kind, carrying a message suitable for direct display. Components that
// know what went wrong construct a typed *PipelineError at the failure site;
// Classify is the fallback for errors that arrive untyped.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure. The set is closed: subscribers decode
// these values from failed events, so new kinds are additive only.
type Kind string

const (
	// KindInvalidFormat indicates an input file in an unsupported format.
	KindInvalidFormat Kind = "invalid_format"
	// KindFileTooLarge indicates an input file over the size ceiling.
	KindFileTooLarge Kind = "file_too_large"
	// KindEmptyFile indicates a zero-byte or unreadable input file.
	KindEmptyFile Kind = "empty_file"
	// KindDurationExceeded indicates audio longer than the duration ceiling.
	KindDurationExceeded Kind = "duration_exceeded"
	// KindTranscodeFailed indicates ffmpeg could not produce canonical audio.
	KindTranscodeFailed Kind = "transcode_failed"
	// KindTranscriptionFailed indicates the provider rejected a transcription request.
	KindTranscriptionFailed Kind = "transcription_failed"
	// KindSynthesisFailed indicates the provider rejected a generation request.
	KindSynthesisFailed Kind = "synthesis_failed"
	// KindRateLimited indicates the provider throttled us past the retry budget.
	KindRateLimited Kind = "rate_limited"
	// KindQuotaExhausted indicates the provider account is out of quota.
	KindQuotaExhausted Kind = "quota_exhausted"
	// KindInvalidCredentials indicates a rejected or missing provider credential.
	KindInvalidCredentials Kind = "invalid_credentials"
	// KindProviderUnavailable indicates provider 5xx responses or timeouts past the retry budget.
	KindProviderUnavailable Kind = "provider_unavailable"
	// KindConnectionLost indicates a broken transport-level connection.
	KindConnectionLost Kind = "connection_lost"
	// KindInternal is the fallback for failures no other kind describes.
	KindInternal Kind = "internal_error"
)

// Valid reports whether k is a member of the closed taxonomy.
func (k Kind) Valid() bool {
	switch k {
	case KindInvalidFormat, KindFileTooLarge, KindEmptyFile, KindDurationExceeded,
		KindTranscodeFailed, KindTranscriptionFailed, KindSynthesisFailed,
		KindRateLimited, KindQuotaExhausted, KindInvalidCredentials,
		KindProviderUnavailable, KindConnectionLost, KindInternal:
		return true
	}
	return false
}

// PipelineError is a classified pipeline failure: a taxonomy Kind plus a
// human-readable message. Message never contains stack traces or internal
// identifiers; it is published verbatim on the job's failed event.
type PipelineError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a PipelineError with the given kind and display message.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Newf creates a PipelineError with a formatted display message.
func Newf(kind Kind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a PipelineError that records cause for logs and errors.Is
// while keeping message as the user-facing text.
func Wrap(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the taxonomy kind carried by err, or KindInternal when err
// was never classified.
func KindOf(err error) Kind {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
