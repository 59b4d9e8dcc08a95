// Package failure classifies the errors raised by the checkout core. Every
// error carries a machine-readable reason next to its human-readable message
// so callers can branch without matching strings.
package failure

import (
	"errors"
	"fmt"
)

type Class string

const (
	Validation Class = "validation"
	Staleness  Class = "staleness"
	Terminal   Class = "terminal"
	Busy       Class = "busy"
	Backend    Class = "backend"
	NotFound   Class = "not_found"
	Integrity  Class = "integrity"
	Degraded   Class = "degraded"
)

type Error struct {
	Class   Class
	Reason  string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any failure with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

func New(class Class, reason, msg string) *Error {
	return &Error{Class: class, Reason: reason, Message: msg}
}

func Wrap(err error, class Class, reason, msg string) *Error {
	return &Error{Class: class, Reason: reason, Message: msg, Err: err}
}

// WithFields returns a copy of e carrying per-field messages.
func (e *Error) WithFields(fields map[string]string) *Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func ClassOf(err error) (Class, bool) {
	fe, ok := As(err)
	if !ok {
		return "", false
	}
	return fe.Class, true
}

var (
	ErrInProgress      = New(Busy, "submission_in_progress", "submission in progress")
	ErrCartNotFound    = New(NotFound, "cart_not_found", "cart not found")
	ErrCartCompleted   = New(Terminal, "cart_completed", "cart is already completed")
	ErrRecreateLimit   = New(Staleness, "recreate_limit", "payment session could not be stabilized")
	ErrUnknownProvider = New(Validation, "unknown_provider", "unknown payment provider")
)
