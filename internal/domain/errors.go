package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers and the response envelope.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindUnauthenticated     ErrorKind = "unauthenticated"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindPreconditionFailed  ErrorKind = "precondition_failed"
	KindConflict            ErrorKind = "conflict"
	KindRateLimited         ErrorKind = "rate_limited"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInternal            ErrorKind = "internal"
)

// Error carries a machine-readable kind and a single human-readable message.
// Game-rule violations are surfaced verbatim to the caller and never retried
// server-side.
type Error struct {
	Kind    ErrorKind
	Message string

	// RetryAfterSeconds is set only for rate_limited errors.
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E constructs a domain error.
func E(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrRateLimited constructs a rate_limited error with a retry hint.
func ErrRateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:              KindRateLimited,
		Message:           "rate limit exceeded",
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// KindOf extracts the error kind, defaulting to internal for plain errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
