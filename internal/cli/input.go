package cli

import (
	"errors"
	"fmt"

	"playbookctl/internal/core"
	"playbookctl/internal/lock"
)

const (
	ExitSuccess           = 0
	ExitExternalTool      = 1
	ExitInvalidInvocation = 2
	ExitValidationError   = 3
	ExitNotFound          = 4
	ExitIOError           = 5
	ExitInternalError     = 6
)

// CLIResult is what a finished invocation reports to main.
type CLIResult struct {
	ExitCode int
	Command  string
}

// InvocationError is a usage error: bad flags, arguments or selectors.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	switch {
	case errors.Is(err, core.ErrExternalTool):
		return ExitExternalTool
	case errors.Is(err, core.ErrValidation):
		return ExitValidationError
	case errors.Is(err, core.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, core.ErrIO), errors.Is(err, lock.ErrLocked):
		return ExitIOError
	default:
		return ExitInternalError
	}
}
