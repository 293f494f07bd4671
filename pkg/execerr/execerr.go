// Package execerr defines the error taxonomy shared across the execution
// core (spec §7). Errors cross package boundaries as typed values so callers
// can classify failures without string matching, mirroring the provider error
// pattern used throughout the teacher's model package.
package execerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a core failure into one of the categories from spec §7.
type Kind string

const (
	// KindTemplateRender indicates an unresolved placeholder or a
	// syntactically invalid template. Surfaced per-turn; the interview
	// continues with that turn recorded as failed.
	KindTemplateRender Kind = "template_render"

	// KindValidation indicates a response did not match its schema after
	// all repair attempts. Recorded per-turn; answer is nil.
	KindValidation Kind = "validation"

	// KindProvider indicates a failure surfaced by a model adapter. See
	// ProviderErrorKind for the finer-grained provider taxonomy.
	KindProvider Kind = "provider"

	// KindBucket indicates a misconfigured bucket or a permanent acquire
	// failure. Fatal to the turn, not the job.
	KindBucket Kind = "bucket"

	// KindCache indicates a cache backend is unavailable.
	KindCache Kind = "cache"

	// KindSurveyValidation indicates a survey failed construction-time
	// validation (§4.1). Always fatal.
	KindSurveyValidation Kind = "survey_validation"

	// KindCancelled indicates cooperative job cancellation. Not logged as
	// a failure.
	KindCancelled Kind = "cancelled"
)

// Error is the concrete error type returned by core components. It carries a
// Kind for classification plus an optional question name for per-turn
// attribution.
type Error struct {
	kind         Kind
	questionName string
	message      string
	cause        error
}

// New constructs an Error of the given kind.
func New(kind Kind, questionName, message string, cause error) *Error {
	if kind == "" {
		panic("execerr: kind is required")
	}
	return &Error{kind: kind, questionName: questionName, message: message, cause: cause}
}

// Kind returns the coarse-grained failure classification.
func (e *Error) Kind() Kind { return e.kind }

// QuestionName returns the question this error is attributed to, or "" when
// the error is not attributable to a single question (e.g. survey
// validation).
func (e *Error) QuestionName() string { return e.questionName }

// Error implements the error interface.
func (e *Error) Error() string {
	q := ""
	if e.questionName != "" {
		q = fmt.Sprintf(" question=%s", e.questionName)
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	return fmt.Sprintf("edsl: %s%s: %s", e.kind, q, msg)
}

// Unwrap returns the underlying cause, preserving the error chain.
func (e *Error) Unwrap() error { return e.cause }

// As reports whether err (or any error in its chain) is an *Error of the
// given kind, returning it when so.
func As(err error, kind Kind) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	if e.kind != kind {
		return nil, false
	}
	return e, true
}

// KindOf reports the Kind of err, if err (or any error in its chain) is an
// *Error. Callers that need to classify an error without knowing its kind in
// advance (e.g. attributing an Interview exception) use this instead of
// probing every Kind with As.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.kind, true
}

// IsCancelled reports whether err represents cooperative cancellation,
// either via this package's KindCancelled or via context.Canceled in the
// error chain.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := As(err, KindCancelled); ok {
		return true
	}
	return errors.Is(err, errCancelledSentinel) || errors.Is(err, context.Canceled)
}

var errCancelledSentinel = errors.New("edsl: cancelled")

// Cancelled returns a sentinel error representing cooperative job
// cancellation (§7 Cancelled).
func Cancelled() error { return New(KindCancelled, "", "job cancelled", errCancelledSentinel) }

// ProviderErrorKind classifies model-provider failures (§4.6, §7).
type ProviderErrorKind string

const (
	// ProviderErrorKindAuth indicates authentication/authorization
	// failures. Fatal to the job.
	ProviderErrorKindAuth ProviderErrorKind = "auth"

	// ProviderErrorKindQuota indicates the provider rejected the request
	// due to quota/rate limiting. Triggers backoff.
	ProviderErrorKindQuota ProviderErrorKind = "quota"

	// ProviderErrorKindSafety indicates content was blocked by provider
	// safety systems. Fatal to the turn, not the job.
	ProviderErrorKindSafety ProviderErrorKind = "safety"

	// ProviderErrorKindMalformed indicates the provider returned a
	// response that does not parse as expected. Enters repair.
	ProviderErrorKindMalformed ProviderErrorKind = "malformed"

	// ProviderErrorKindOther indicates an unclassified provider failure.
	// Retried, then fatal to the turn.
	ProviderErrorKindOther ProviderErrorKind = "other"
)

// ProviderError describes a failure returned by a model provider. It is
// intended to cross package boundaries so the scheduler and invigilator can
// make retry/abort decisions on stable, structured information rather than
// string matching.
type ProviderError struct {
	Service   string
	Operation string
	HTTP      int
	Kind      ProviderErrorKind
	Code      string
	Message   string
	RequestID string
	Retryable bool
	Cause     error
}

// NewProviderError constructs a ProviderError. service and kind are required.
func NewProviderError(service, operation string, http int, kind ProviderErrorKind, code, message, requestID string, retryable bool, cause error) *ProviderError {
	if service == "" {
		panic("execerr: provider service is required")
	}
	if kind == "" {
		panic("execerr: provider error kind is required")
	}
	return &ProviderError{
		Service:   service,
		Operation: operation,
		HTTP:      http,
		Kind:      kind,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Retryable: retryable,
		Cause:     cause,
	}
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "call"
	}
	status := ""
	if e.HTTP > 0 {
		status = fmt.Sprintf("%d ", e.HTTP)
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.Service, e.Kind, status, op, code+msg)
}

// Unwrap preserves the original error chain.
func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError returns the first *ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrRateLimited indicates a provider rejected a request due to rate
// limiting after exhausting configured retries.
var ErrRateLimited = errors.New("edsl: model rate limited")

// ErrStreamingUnsupported indicates the provider adapter does not support
// streaming (unused by the core turn loop, reserved for forward
// compatibility with adapters that expose it).
var ErrStreamingUnsupported = errors.New("edsl: model streaming not supported")
