package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat matches every *FormatError.
	ErrFormat = errors.New("invalid profiling data format")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("profiling data validation failed")

	// ErrToolInvocation matches every *ToolInvocationError.
	ErrToolInvocation = errors.New("profiling tool invocation failed")

	// ErrNotFound is returned when a run or file does not exist in a store.
	ErrNotFound = errors.New("not found")

	// ErrNotSupported is returned by store operations a backend cannot serve.
	ErrNotSupported = errors.New("not supported")
)

// FormatError reports a document that is not valid profiling data: missing
// top-level keys, a missing format-version marker or undecodable content.
// It is fatal for the file and is never retried.
type FormatError struct {
	File   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := e.Reason
	if e.File != "" {
		msg = fmt.Sprintf("%s is not a Spot file: %s", e.File, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Unwrap returns the underlying decode error, if any.
func (e *FormatError) Unwrap() error { return e.Err }

// ValidationError reports a global value that cannot be coerced to the
// datatype declared by its attribute metadata.
type ValidationError struct {
	File     string
	Field    string
	Value    string
	Datatype string
	Err      error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "value %q of %s is not a valid %s", e.Value, e.Field, e.Datatype)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap returns the underlying parse error.
func (e *ValidationError) Unwrap() error { return e.Err }

// ToolInvocationError reports a failed external tool run: a non-zero exit,
// a timeout or output that is not JSON.
type ToolInvocationError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ToolInvocationError) Error() string {
	msg := fmt.Sprintf("command %v", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" exited with %d", e.ExitCode)
	} else {
		msg += " failed"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += " (" + firstLine(stderr) + ")"
	}
	return msg
}

// Is reports whether target is ErrToolInvocation.
func (e *ToolInvocationError) Is(target error) bool { return target == ErrToolInvocation }

// Unwrap returns the underlying process or decode error.
func (e *ToolInvocationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying. Only tool invocation
// failures are; malformed input fails the same way every time.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFormat) || errors.Is(err, ErrValidation) {
		return false
	}
	return errors.Is(err, ErrToolInvocation)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
