package heatwave

import (
	"fmt"
	"strings"

	"github.com/n2code/heatwave/internal/fault"
)

// ErrorKind tells callers how to react to a failed operation.
type ErrorKind = fault.Kind

const (
	ParseError               = fault.Parse
	ConsistencyError         = fault.Consistency
	ExternalToolMissingError = fault.ExternalToolMissing
	ExternalToolFailedError  = fault.ExternalToolFailed
	FilesystemInvariantError = fault.FilesystemInvariant
)

// KindOf yields the kind of the first classified error in the chain, zero if there is none.
func KindOf(err error) ErrorKind {
	return fault.KindOf(err)
}

// IsKind reports whether any error in the chain, joined errors included, has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return fault.Is(err, kind)
}

type CommandError struct {
	message string
	cause   error
}

func (e *CommandError) Error() string {
	var msg strings.Builder
	fmt.Fprint(&msg, e.message)
	if e.cause != nil {
		fmt.Fprint(&msg, ": ", e.cause)
	}
	return msg.String()
}

func (e *CommandError) Unwrap() error {
	return e.cause
}

func newCommandError(message string, cause error) *CommandError {
	return &CommandError{message: message, cause: cause}
}
