// Package brokererr defines the broker's error taxonomy (spec.md §7).
//
// Errors carry a Kind so callers can branch on category instead of
// matching strings, while still wrapping a cause with github.com/pkg/errors
// the way the teacher's node and work packages wrap lower-level failures.
package brokererr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy from spec.md §7.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotInitialized   Kind = "not-initialized"
	KindFrozen           Kind = "frozen"
	KindRuleViolation    Kind = "rule-violation"
	KindNoCompatOption   Kind = "no-compatible-option"
	KindNetworkMismatch  Kind = "network-mismatch"
	KindSDKNotInstalled  Kind = "sdk-not-installed"
	KindSessionNotFound  Kind = "session-not-found"
	KindSessionExpired   Kind = "session-expired"
	KindUpstream         Kind = "upstream"
	KindPersistence      Kind = "persistence"
	KindInternal         Kind = "internal"
	KindDemoWrite        Kind = "write-disabled"
)

// Error is the broker's single error type. Message is the human-readable
// string surfaced to callers (HTTP body, stdio envelope); Cause is the
// wrapped underlying error, kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Reason fields for rule-violation errors (spec.md §7): the configured
	// limit and the offending value. For the per-transaction and daily-cap
	// rules both are decimal USDC strings; for blocked and not-allowed,
	// Limit is empty and Value is the service.
	Limit   string
	Value   string
	Service string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower-level cause, preserving it
// via github.com/pkg/errors for logging (stack trace) without leaking it
// to the caller-visible Message.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: errors.Wrap(cause, message)}
}

// RuleViolation builds a rule-violation error carrying the limit/value/service
// triple spec.md §7 requires.
func RuleViolation(message, limit, value, service string) *Error {
	return &Error{Kind: KindRuleViolation, Message: message, Limit: limit, Value: value, Service: service}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindInternal if err isn't a *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code the JSON binding uses (spec.md §7).
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindRuleViolation, KindNoCompatOption, KindNetworkMismatch,
		KindSessionNotFound, KindSessionExpired, KindNotInitialized, KindFrozen, KindSDKNotInstalled:
		return 400
	case KindDemoWrite:
		return 403
	case KindInternal, KindPersistence, KindUpstream:
		return 500
	default:
		return 500
	}
}
