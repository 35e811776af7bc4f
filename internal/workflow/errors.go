package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindInvalidPayload   Kind = "invalid_payload"
	KindContention       Kind = "contention"
	KindAlreadyFinalized Kind = "already_finalized"
	KindAuditWriteFailed Kind = "audit_write_failed"
)

// Error is the typed failure returned across component boundaries. Available
// lists the transitions the caller's role may still take from the current state.
type Error struct {
	Kind      Kind
	Message   string
	Available []Option
	Err       error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithMessagef returns a copy of the sentinel carrying a specific message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...)}
}

// WithAvailable attaches the legal options for the caller.
func (e *Error) WithAvailable(options []Option) *Error {
	out := *e
	out.Available = options
	return &out
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrInvalidPayload   = &Error{Kind: KindInvalidPayload}
	ErrContention       = &Error{Kind: KindContention}
	ErrAlreadyFinalized = &Error{Kind: KindAlreadyFinalized}
	ErrAuditWriteFailed = &Error{Kind: KindAuditWriteFailed}
)

// KindOf extracts the kind from err, or "" when err is not a workflow error.
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}
