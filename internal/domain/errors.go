package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable tag attached to every fallible operation's failure.
// Kinds cross the system boundary on the stakeholder channel; messages are for
// humans, kinds are for callers.
type ErrorKind string

const (
	KindThrottled            ErrorKind = "throttled"
	KindInvalidTask          ErrorKind = "invalid_task"
	KindInvalidTransaction   ErrorKind = "invalid_transaction"
	KindInsufficientBalance  ErrorKind = "insufficient_balance"
	KindAccountNotFound      ErrorKind = "account_not_found"
	KindHeldForReview        ErrorKind = "held_for_review"
	KindStoreUnavailable     ErrorKind = "store_unavailable"
	KindConstraintViolation  ErrorKind = "constraint_violation"
	KindSerializationFailure ErrorKind = "serialization_failure"
	KindAssignmentTimeout    ErrorKind = "assignment_timeout"
	KindNoCompatibleWorker   ErrorKind = "no_compatible_worker"
	KindDependencyUnready    ErrorKind = "dependency_unready"
)

// Error is a tagged error. Validation and balance failures are returned to
// callers with their kind; storage failures wrap the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a tagged error.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef constructs a tagged error with a formatted message.
func Ef(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind.
func Wrap(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Untagged errors report an
// empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
