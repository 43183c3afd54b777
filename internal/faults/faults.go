// Package faults defines the error taxonomy shared by the ingestion and
// query pipelines. Every failure crossing a service boundary is one of the
// kinds below; raw upstream errors never leak to API callers.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a caller fault (bad content type, empty payload,
	// chunk count out of bounds, empty query). Never retried.
	KindValidation
	// KindTransient is an upstream timeout, throttle, or connection
	// failure. The caller may retry the whole request.
	KindTransient
	// KindMalformedResponse means an upstream response carried no
	// recognizable payload field.
	KindMalformedResponse
	// KindEmptyGeneration means the model responded but the extracted
	// answer was empty or whitespace-only.
	KindEmptyGeneration
	// KindUnsupportedModel means the configured model id matched no known
	// model family.
	KindUnsupportedModel
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindMalformedResponse:
		return "malformed_response"
	case KindEmptyGeneration:
		return "empty_generation"
	case KindUnsupportedModel:
		return "unsupported_model"
	default:
		return "unknown"
	}
}

// ErrTooManyChunks marks a validation failure caused by the document chunk
// ceiling; the HTTP layer maps it to 413 instead of the generic 400.
var ErrTooManyChunks = errors.New("chunk count exceeds limit")

// Error is a classified pipeline failure.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the classification of err, or KindUnknown if err was never
// translated into a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

// Validation builds a caller-fault error.
func Validation(format string, args ...interface{}) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// TooManyChunks builds the chunk-ceiling validation error.
func TooManyChunks(count, limit int) error {
	return &Error{
		kind:  KindValidation,
		msg:   fmt.Sprintf("document produced %d chunks, limit is %d", count, limit),
		cause: ErrTooManyChunks,
	}
}

// Transient wraps an upstream failure, preserving the upstream message
// verbatim for diagnosis.
func Transient(cause error, format string, args ...interface{}) error {
	return &Error{kind: KindTransient, msg: fmt.Sprintf(format, args...), cause: cause}
}

// MalformedResponse reports an upstream response with no recognizable
// payload field.
func MalformedResponse(format string, args ...interface{}) error {
	return &Error{kind: KindMalformedResponse, msg: fmt.Sprintf(format, args...)}
}

// maxExcerpt bounds the raw-body excerpt carried by EmptyGeneration so
// diagnostics never drag unbounded payloads into logs.
const maxExcerpt = 300

// EmptyGeneration reports a parsed-but-empty model answer, carrying a
// bounded excerpt of the raw response body.
func EmptyGeneration(modelID string, rawBody []byte) error {
	excerpt := rawBody
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	return &Error{
		kind: KindEmptyGeneration,
		msg:  fmt.Sprintf("model %s returned an empty answer (raw response: %q)", modelID, excerpt),
	}
}

// UnsupportedModel reports a model id that matched no known family.
func UnsupportedModel(modelID string) error {
	return &Error{kind: KindUnsupportedModel, msg: fmt.Sprintf("unsupported model id %q", modelID)}
}
