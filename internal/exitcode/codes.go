// Package exitcode defines structured exit codes for pawlaunch commands.
// Each failure category the launcher can surface has its own code so that
// scripts and the tray can tell them apart without parsing messages.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage, internal)
//   - 10-19: Missing prerequisites (interpreter, version control client)
//   - 20-29: Installation failures
//   - 40-49: Timeout errors
//   - 50-59: Conflict/state errors
//   - 60-69: Uninstall errors
//
// # Usage
//
//	return exitcode.RuntimeUnavailable("3.11")
//	if exitcode.Is(err, exitcode.ErrOperationInProgress) {
//	    // another install is running
//	}
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for pawlaunch commands.
const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral  = 1 // General/unknown error
	ErrUsage    = 2 // Invalid arguments or usage
	ErrInternal = 3 // Internal error (bug)

	// Missing prerequisites (10-19)
	ErrRuntimeUnavailable = 10 // No compatible interpreter found or installable
	ErrDependencyMissing  = 11 // Required external tool (git) not on PATH

	// Installation (20-29)
	ErrInstallFailed = 20 // Package install step failed

	// Timeout errors (40-49)
	ErrStartupTimeout = 40 // Server spawned but never became healthy

	// Conflict/state errors (50-59)
	ErrOperationInProgress = 50 // Another install/upgrade/reset holds the lock

	// Uninstall (60-69)
	ErrComponentRemovalFailed = 60 // One or more components could not be removed
)

// Error wraps an error with a specific exit code.
// Remediation, when set, tells the user what to do next.
type Error struct {
	Code        int
	Message     string
	Remediation string
	Cause       error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Remediation != "" {
		msg += "\n\n" + e.Remediation
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a code and printf-style message.
func Wrapf(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRemediation attaches a remediation hint and returns the error.
func (e *Error) WithRemediation(hint string) *Error {
	e.Remediation = hint
	return e
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if the error doesn't have a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// RemediationOf returns the remediation hint of the outermost coded error, if any.
func RemediationOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Remediation
	}
	return ""
}

// PythonDownloadURL is where users are sent when no interpreter can be provisioned.
const PythonDownloadURL = "https://www.python.org/downloads/"

// GitDownloadURL is where users are sent when git is required but missing.
const GitDownloadURL = "https://git-scm.com/downloads"

// RuntimeUnavailable returns an error for a missing interpreter.
func RuntimeUnavailable(minVersion string) *Error {
	return Newf(ErrRuntimeUnavailable, "Python %s+ not found and could not be installed", minVersion).
		WithRemediation(fmt.Sprintf("Install Python %s or newer from %s, make sure it is on your PATH, then run the launcher again.",
			minVersion, PythonDownloadURL))
}

// DependencyMissing returns an error for a missing external tool.
func DependencyMissing(tool, purpose string) *Error {
	hint := fmt.Sprintf("Install %s and make sure it is on your PATH.", tool)
	if tool == "git" {
		hint = fmt.Sprintf("Install git from %s, or use --local <path> with a checkout instead of --branch.", GitDownloadURL)
	}
	return Newf(ErrDependencyMissing, "%s is required %s but was not found on PATH", tool, purpose).
		WithRemediation(hint)
}

// InstallFailed returns an error for a failed package install.
func InstallFailed(message, logPath string, cause error) *Error {
	e := Wrap(ErrInstallFailed, message, cause)
	if logPath != "" {
		e.Remediation = fmt.Sprintf("Check the log at %s for details. The environment was left in place for diagnosis; run with --reset to start fresh.", logPath)
	}
	return e
}

// StartupTimeout returns an error for a server that never became healthy.
func StartupTimeout(port int, waited fmt.Stringer) *Error {
	return Newf(ErrStartupTimeout, "server on port %d did not become healthy within %s", port, waited).
		WithRemediation("The server process was left running and may still come up. Check server.log, then try 'pawlaunch status' or 'pawlaunch restart'.")
}

// OperationInProgress returns an error for a rejected concurrent mutation.
func OperationInProgress(operation string) *Error {
	return Newf(ErrOperationInProgress, "cannot %s: another install, upgrade, or reset is in progress", operation)
}

// ComponentRemovalFailed returns an error for a component that could not be removed.
func ComponentRemovalFailed(component string, cause error) *Error {
	return Wrapf(ErrComponentRemovalFailed, cause, "failed to remove %s", component)
}
