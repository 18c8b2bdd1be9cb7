// Package errs defines the error taxonomy shared by the overlay merger and
// the protocol executor.
//
// Every error carries a Code. Sentinel values (ErrNotFound, ...) carry only a
// code, so errors.Is matches any Error with the same code regardless of the
// path or message attached to it:
//
//	if errors.Is(err, errs.ErrProtocolNotRun) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeNotFound indicates a missing root, metadata file or source directory.
	CodeNotFound Code = "NOT_FOUND"

	// CodeNotADirectory indicates a path expected to be a directory is not one.
	CodeNotADirectory Code = "NOT_A_DIRECTORY"

	// CodeProtocolNotRun indicates an output stream was read before any run produced it.
	CodeProtocolNotRun Code = "PROTOCOL_NOT_RUN"

	// CodeLaunchFailed indicates the child process could not be started.
	CodeLaunchFailed Code = "LAUNCH_FAILED"

	// CodeTimeout indicates the wait on the child process was cancelled or timed out.
	CodeTimeout Code = "TIMEOUT"

	// CodeInvalidRecord indicates a record file exists but cannot be read or parsed.
	CodeInvalidRecord Code = "INVALID_RECORD"
)

// Sentinels for errors.Is.
var (
	ErrNotFound       = &Error{Code: CodeNotFound}
	ErrNotADirectory  = &Error{Code: CodeNotADirectory}
	ErrProtocolNotRun = &Error{Code: CodeProtocolNotRun}
	ErrLaunchFailed   = &Error{Code: CodeLaunchFailed}
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrInvalidRecord  = &Error{Code: CodeInvalidRecord}
)

// Error is a categorized harness error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Path is the filesystem path the error is about, if any.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Path != "" && msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NotFound creates a CodeNotFound error.
func NotFound(path, message string) *Error {
	return &Error{Code: CodeNotFound, Path: path, Message: message}
}

// NotADirectory creates a CodeNotADirectory error.
func NotADirectory(path, message string) *Error {
	return &Error{Code: CodeNotADirectory, Path: path, Message: message}
}

// ProtocolNotRun creates a CodeProtocolNotRun error for a missing log file.
func ProtocolNotRun(path string) *Error {
	return &Error{Code: CodeProtocolNotRun, Path: path, Message: "protocol has not run"}
}

// LaunchFailed wraps a process start failure.
func LaunchFailed(path string, err error) *Error {
	return &Error{Code: CodeLaunchFailed, Path: path, Message: "failed to launch script", Err: err}
}

// Timeout wraps a cancelled or timed out wait.
func Timeout(path string, err error) *Error {
	return &Error{Code: CodeTimeout, Path: path, Message: "script did not finish", Err: err}
}

// InvalidRecord wraps a record file that exists but cannot be used.
func InvalidRecord(path string, err error) *Error {
	return &Error{Code: CodeInvalidRecord, Path: path, Message: "unreadable record", Err: err}
}

// CodeOf returns the code of the first Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a CodeNotFound error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNotADirectory returns true if err is a CodeNotADirectory error.
func IsNotADirectory(err error) bool { return errors.Is(err, ErrNotADirectory) }

// IsProtocolNotRun returns true if err is a CodeProtocolNotRun error.
func IsProtocolNotRun(err error) bool { return errors.Is(err, ErrProtocolNotRun) }

// IsLaunchFailed returns true if err is a CodeLaunchFailed error.
func IsLaunchFailed(err error) bool { return errors.Is(err, ErrLaunchFailed) }

// IsTimeout returns true if err is a CodeTimeout error.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
