// Package apperr defines the error kinds shared by the economy engines.
//
// Domain packages declare sentinel errors with New and callers match them with errors.Is.
// Handlers only look at the Kind to pick a status code; the message of an internal error
// never reaches the client.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindStateConflict     Kind = "state_conflict"
	KindRateLimited       Kind = "rate_limited"
	KindFraudSuspected    Kind = "fraud_suspected"
	KindInternal          Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates a classified sentinel error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// RateLimitedError is returned while a caller is blocked.
type RateLimitedError struct {
	RetryAfter time.Duration
	Permanent  bool
}

func (e *RateLimitedError) Error() string {
	if e.Permanent {
		return "too many failed attempts: blocked until cleared by an administrator"
	}
	return fmt.Sprintf("too many failed attempts: retry after %s", e.RetryAfter.Round(time.Second))
}

// ErrInternal is wrapped around unexpected failures.
var ErrInternal = New(KindInternal, "internal error")

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return KindRateLimited
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Internal wraps err as an internal failure of the named step.
func Internal(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, step, err)
}

// PublicMessage returns the text that may be shown to an end user.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInternal:
		return "An unexpected error occurred"
	case KindFraudSuspected:
		return "This request cannot be processed right now"
	}
	return err.Error()
}
