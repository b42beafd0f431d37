package services

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable failure category reported to callers
type Kind string

const (
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindNotFound           Kind = "NOT_FOUND"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindConflict           Kind = "CONFLICT"
	KindTransient          Kind = "TRANSIENT"
	KindInternal           Kind = "INTERNAL"
	KindRateLimited        Kind = "RATE_LIMITED"
)

// Error is the single failure a service operation reports
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// RetryAfterSec is set for KindRateLimited
	RetryAfterSec int64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidArgument(msg string) *Error { return &Error{Kind: KindInvalidArgument, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func PreconditionFailed(msg string) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: msg}
}

func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

func RateLimited(retryAfterSec int64) *Error {
	return &Error{Kind: KindRateLimited, Message: "too many requests, slow down", RetryAfterSec: retryAfterSec}
}

// KindOf classifies any error. Context cancellation counts as transient, anything
// unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// AsError returns err as an *Error, wrapping unclassified errors as internal
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if KindOf(err) == KindTransient {
		return Transient("request cancelled", err)
	}
	return Internal(err)
}
