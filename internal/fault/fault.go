package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind int

const (
	Parse               Kind = iota + 1 //malformed or incomplete input file, fatal to the triggering ingestion
	Consistency                         //document and derived index disagree, aborts the single action
	ExternalToolMissing                 //executable not found, nothing was changed
	ExternalToolFailed                  //executable ran but failed, nothing was replaced
	FilesystemInvariant                 //should-never-happen filesystem state, processing halts
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse error"
	case Consistency:
		return "consistency error"
	case ExternalToolMissing:
		return "external tool missing"
	case ExternalToolFailed:
		return "external tool failed"
	case FilesystemInvariant:
		return "filesystem invariant violated"
	default:
		return "error"
	}
}

// Error carries a Kind along with the subject (usually a file path) it concerns.
type Error struct {
	Kind    Kind
	Subject string
	message string
	cause   error
}

func (e *Error) Error() string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "%s: %s", e.Kind, e.message)
	if e.Subject != "" {
		fmt.Fprintf(&msg, " (%s)", e.Subject)
	}
	if e.cause != nil {
		fmt.Fprint(&msg, ": ", e.cause)
	}
	return msg.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, subject string, message string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, message: message, cause: cause}
}

func Parsef(subject string, format string, values ...interface{}) *Error {
	return New(Parse, subject, fmt.Sprintf(format, values...), nil)
}

func Consistencyf(subject string, format string, values ...interface{}) *Error {
	return New(Consistency, subject, fmt.Sprintf(format, values...), nil)
}

func Invariantf(subject string, format string, values ...interface{}) *Error {
	return New(FilesystemInvariant, subject, fmt.Sprintf(format, values...), nil)
}

// KindOf yields the kind of the first fault.Error found in the chain (joined errors included) or 0.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// Is reports whether any error in the chain is a fault.Error of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	if f, ok := err.(*Error); ok && f.Kind == kind {
		return true
	}
	switch wrapped := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range wrapped.Unwrap() {
			if Is(inner, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return Is(wrapped.Unwrap(), kind)
	}
	return false
}
