package apperror

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of an application error.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindValidationFailed   Kind = "VALIDATION_FAILED"
	KindConflict           Kind = "CONFLICT"
	KindPersistenceFailed  Kind = "PERSISTENCE_FAILED"
)

// Error is an application error with a kind the transport layer can map
// to a status code. The wrapped cause, if any, is preserved for logging.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NotFound reports an unresolved exchange or sub-record identifier.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PreconditionFailed reports a state-machine guard that was not satisfied.
// The caller must correct state before resubmitting; it is never retried.
func PreconditionFailed(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// ValidationFailed reports a malformed payload.
func ValidationFailed(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a concurrent modification detected by the version check.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure (transaction aborted, DB unavailable).
func Persistence(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPersistenceFailed, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
