package broker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies broker failures. The supervisor retries only
// Retryable and Disconnected; everything else surfaces as a rejection.
type ErrorKind string

const (
	KindRetryable          ErrorKind = "retryable"
	KindRejected           ErrorKind = "rejected"
	KindSymbolInvalid      ErrorKind = "symbol_invalid"
	KindInsufficientMargin ErrorKind = "insufficient_margin"
	KindSpreadBlocked      ErrorKind = "spread_blocked"
	KindDisconnected       ErrorKind = "disconnected"
)

// Error carries the terminal retcode alongside its classification
type Error struct {
	Kind    ErrorKind
	Retcode int
	Msg     string
}

func (e *Error) Error() string {
	if e.Retcode != 0 {
		return fmt.Sprintf("broker: %s (retcode %d): %s", e.Kind, e.Retcode, e.Msg)
	}
	return fmt.Sprintf("broker: %s: %s", e.Kind, e.Msg)
}

// NewError creates a classified broker error
func NewError(kind ErrorKind, retcode int, msg string) *Error {
	return &Error{Kind: kind, Retcode: retcode, Msg: msg}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as retryable so that transport hiccups do not kill
// the supervisor loop.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindRetryable
}

// ShouldRetry reports whether the supervisor may retry the failed call
func ShouldRetry(err error) bool {
	k := KindOf(err)
	return k == KindRetryable || k == KindDisconnected
}
