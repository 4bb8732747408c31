// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors provides structured error handling for omgd.
//
// It defines two shapes. UserError carries a summary, cause, and fix hint
// for the handful of unrecoverable conditions that abort daemon startup
// (lock contention, corrupt store, unreadable config) and maps to one of
// the process exit codes in spec.md §6. WireError carries one of the JSON-RPC
// style codes in spec.md §7 and is what handlers attach to an Error
// response; it never aborts the process.
package errors

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Process exit codes, per spec.md §6.
const (
	ExitSuccess = 0 // normal shutdown
	ExitStartup = 1 // lock contention, unreadable config
	ExitFatal   = 2 // store corruption unrecoverable
)

// Wire error codes, per spec.md §7. These travel in Response.Error.Code.
const (
	CodeParseError      = -32700
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodePackageNotFound = -1001
	CodeRateLimited     = -1002
)

// UserError represents a structured startup/operational error with
// actionable context for whoever is running omgd in the foreground.
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is the process exit code associated with this error.
	ExitCode int

	// Err is the underlying error, if any.
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// NewConfigError creates a startup error for missing/invalid configuration.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitStartup, Err: err}
}

// NewLockError creates a startup error for PID-file lock contention.
func NewLockError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitStartup, Err: err}
}

// NewStoreError creates a fatal error for unrecoverable L2 store corruption.
func NewStoreError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitFatal, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for terminal display (used by --foreground).
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// FatalError prints the error and exits with its associated code. It never
// returns. Only startup/runtime code that cannot recover should call this —
// handler errors must be converted to WireError and returned over IPC instead.
func FatalError(err error) {
	if err == nil {
		return
	}
	if ue, ok := err.(*UserError); ok {
		fmt.Fprint(os.Stderr, ue.Format(false))
		os.Exit(ue.ExitCode)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitFatal)
}

// WireError is the structured error a dispatcher handler returns; the
// dispatcher converts it directly into a Response.Error frame.
type WireError struct {
	Code    int
	Message string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// New constructs a WireError.
func New(code int, message string) *WireError {
	return &WireError{Code: code, Message: message}
}

// ParseError reports a codec failure (§4.1).
func ParseError(message string) *WireError { return New(CodeParseError, message) }

// MethodNotFound reports an unknown request tag.
func MethodNotFound(message string) *WireError { return New(CodeMethodNotFound, message) }

// InvalidParams reports a bounds violation.
func InvalidParams(message string) *WireError { return New(CodeInvalidParams, message) }

// Internal reports a backend/store failure or a deadline exceeded.
func Internal(message string) *WireError { return New(CodeInternalError, message) }

// PackageNotFound reports a missed Info/get_one lookup.
func PackageNotFound(name string) *WireError {
	return New(CodePackageNotFound, fmt.Sprintf("package not found: %s", name))
}

// RateLimited reports a per-connection policy violation.
func RateLimited(message string) *WireError { return New(CodeRateLimited, message) }

// AsWireError converts any error into a WireError, defaulting to
// CodeInternalError when err doesn't already carry a wire code.
func AsWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*WireError); ok {
		return we
	}
	return Internal(err.Error())
}
