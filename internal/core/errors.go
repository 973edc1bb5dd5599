package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIO           = errors.New("io error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrExternalTool = errors.New("external tool failure")
)

// IOError reports a file that is missing, unreadable or unwritable.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, ErrIO)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports absent state: no saved optimization, or a host
// without a vars file.
type NotFoundError struct {
	What string
	Path string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.What, ErrNotFound)
	}
	return fmt.Sprintf("%s: %s (%s)", e.What, ErrNotFound, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ExternalToolFailure is the failed outcome of a delegated process.
//
// ExitCode is -1 when the process never started.
type ExternalToolFailure struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalToolFailure) Error() string {
	if e == nil {
		return ""
	}
	stderr := strings.TrimSpace(e.Stderr)
	switch {
	case stderr != "":
		return fmt.Sprintf("%s (exit %d): %s", e.Tool, e.ExitCode, stderr)
	case e.Err != nil:
		return fmt.Sprintf("%s (exit %d): %v", e.Tool, e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("%s (exit %d)", e.Tool, e.ExitCode)
	}
}

func (e *ExternalToolFailure) Is(target error) bool { return target == ErrExternalTool }

func (e *ExternalToolFailure) Unwrap() error { return e.Err }
