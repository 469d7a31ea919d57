// Package errdefs defines the error classes Orbiter components report and the
// predicates the queue consumer uses to route failures (retry vs dead-letter).
//
// Handlers wrap errors to attach context and re-return them; they never
// swallow a class. Transient errors are surfaced for redelivery, terminal
// errors (not found, validation) move the message to the DLQ.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing decisions.
type Kind int

const (
	// KindTransient marks temporarily failing dependencies (store, queue).
	// Safe to retry via the queue's redelivery machinery.
	KindTransient Kind = iota
	// KindNotFound marks a record that vanished between enqueue and
	// processing. Terminal for that message.
	KindNotFound
	// KindRemoteDependency marks a generative-service call failure.
	// Aborts the enclosing operation.
	KindRemoteDependency
	// KindValidation marks a malformed message or record. Terminal.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindRemoteDependency:
		return "remote_dependency"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Transient wraps err as a transient host/store failure.
func Transient(msg string, err error) error {
	return &Error{kind: KindTransient, msg: msg, cause: err}
}

// NotFound creates a not-found error for the given identity.
func NotFound(msg string) error {
	return &Error{kind: KindNotFound, msg: msg}
}

// RemoteDependency wraps err as a remote generative-service failure.
func RemoteDependency(msg string, err error) error {
	return &Error{kind: KindRemoteDependency, msg: msg, cause: err}
}

// Validation creates a validation error for a malformed message or record.
func Validation(msg string) error {
	return &Error{kind: KindValidation, msg: msg}
}

// Validationf creates a formatted validation error.
func Validationf(format string, args ...interface{}) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// IsTransient reports whether err is a transient failure.
func IsTransient(err error) bool { return is(err, KindTransient) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsRemoteDependency reports whether err is a remote dependency failure.
func IsRemoteDependency(err error) bool { return is(err, KindRemoteDependency) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsTerminal reports whether err should dead-letter rather than retry.
func IsTerminal(err error) bool {
	return IsNotFound(err) || IsValidation(err)
}
