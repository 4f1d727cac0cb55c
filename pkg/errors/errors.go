// Package errors provides structured error types for condabundle.
//
// Every failure of a bundle run is reported as an *Error carrying one of the
// codes below, so the CLI can name the failing step and callers can branch on
// the kind of failure without string matching.
//
// # Error Codes
//
//   - CONFIGURATION_ERROR: a referenced input does not exist, or options conflict
//   - PROVISIONING_ERROR: conda could not be fetched, installed, or could not create the environment
//   - INSTALLATION_ERROR: the package's own install procedure failed
//   - COMPRESSION_ERROR: the environment could not be archived
//   - PUBLISH_ERROR: the archive could not be moved into the output directory
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfiguration, "setup script not found: %s", path)
//	if errors.Is(err, errors.ErrCodeConfiguration) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInstallation, origErr, "setup.py install failed")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes, one per pipeline failure kind.
const (
	ErrCodeConfiguration Code = "CONFIGURATION_ERROR"
	ErrCodeProvisioning  Code = "PROVISIONING_ERROR"
	ErrCodeInstallation  Code = "INSTALLATION_ERROR"
	ErrCodeCompression   Code = "COMPRESSION_ERROR"
	ErrCodePublish       Code = "PUBLISH_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// commandOutputer is implemented by errors that carry the captured output of
// a failed external command.
type commandOutputer interface {
	CommandOutput() string
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, it returns the message without the code prefix, followed
// by the failing command's output when the chain carries one. For other
// errors, it returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	var co commandOutputer
	if errors.As(err, &co) {
		if out := co.CommandOutput(); out != "" {
			return e.Message + "\n" + out
		}
	}
	return e.Message
}

// Step returns the pipeline step name a code belongs to, for user-facing
// failure summaries.
func (c Code) Step() string {
	switch c {
	case ErrCodeConfiguration:
		return "configuration"
	case ErrCodeProvisioning:
		return "environment provisioning"
	case ErrCodeInstallation:
		return "package installation"
	case ErrCodeCompression:
		return "archive compression"
	case ErrCodePublish:
		return "artifact publishing"
	default:
		return "internal"
	}
}
