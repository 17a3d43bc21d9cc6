package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when an invocation names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError reports a missing or malformed tool argument.
// Its message is surfaced verbatim to the calling client.
type ValidationError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// APIError reports that an HTTP exchange with the remote API could not be completed.
// HTTP error statuses are not APIErrors: they are passed through in APIResult.
type APIError struct {
	Service string
	Method  string
	Path    string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %v", e.Service, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// CLIError reports that the external program could not be started or exited unsuccessfully.
type CLIError struct {
	Service  string
	ExitCode int // -1 when the process never ran
	Stderr   string
	Err      error
}

func (e *CLIError) Error() string {
	msg := fmt.Sprintf("%s CLI error: %v", e.Service, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}
