// Package apperr defines the error kinds shared by the ledger packages.
//
// Every failure that reaches a caller carries a Kind (what went wrong, at the
// level a client can act on) and optionally a Reason (a stable machine code
// such as SPLIT_MISMATCH). The service layer maps kinds onto transport codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindConflict         Kind = "CONFLICT"
	KindUpstreamDegraded Kind = "UPSTREAM_DEGRADED"
	KindInternal         Kind = "INTERNAL"
)

// Reasons attached to errors where the kind alone is too coarse.
const (
	ReasonSplitMismatch       = "SPLIT_MISMATCH"
	ReasonSplitRequired       = "SPLIT_REQUIRED"
	ReasonInvalidSplit        = "INVALID_SPLIT"
	ReasonNotGroupMember      = "NOT_GROUP_MEMBER"
	ReasonAlreadyMember       = "ALREADY_MEMBER"
	ReasonInviteCodeCollision = "INVITE_CODE_COLLISION"
	ReasonUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	ReasonEmailExists         = "EMAIL_EXISTS"
	ReasonWeakPassword        = "WEAK_PASSWORD"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithReason returns a copy of e carrying the given reason code.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

// Validation reports malformed or inconsistent input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing group, expense, user or payment.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a failed ownership or membership check.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Degraded wraps an upstream failure that was absorbed by a fallback.
func Degraded(upstream string, err error) *Error {
	return &Error{Kind: KindUpstreamDegraded, Message: upstream + " unavailable", Err: err}
}

// Internal wraps an unexpected failure, usually from persistence.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
