package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("task not found")
	ErrInvalidState   = errors.New("invalid task state")
	ErrMalformedInput = errors.New("malformed input")
	ErrIO             = errors.New("store i/o failure")
)

// Error carries one of the error kinds above plus the task it concerns.
type Error struct {
	Kind   error
	TaskID string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports an unknown task id
func NotFound(taskID string) error {
	return &Error{Kind: ErrNotFound, TaskID: taskID, Msg: fmt.Sprintf("%q", taskID)}
}

// InvalidState reports an operation attempted from a non-matching state
func InvalidState(taskID, op string, current Status) error {
	return &Error{
		Kind:   ErrInvalidState,
		TaskID: taskID,
		Msg:    fmt.Sprintf("cannot %s %q from status %s", op, taskID, current),
	}
}

// Malformed reports unparsable parameters or documents
func Malformed(format string, args ...any) error {
	return &Error{Kind: ErrMalformedInput, Msg: fmt.Sprintf(format, args...)}
}

// IOFailure wraps a store read/write failure
func IOFailure(err error, format string, args ...any) error {
	return &Error{Kind: ErrIO, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsInputError reports whether err should abort a CLI invocation with a
// non-zero exit code.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrIO)
}
