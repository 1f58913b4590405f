package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey-austin/vigil/internal/adapters/mqtt"
	"github.com/mikey-austin/vigil/internal/catalog"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/internal/modules/controller"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitRuntime     = 1
	ExitUsage       = 2
	ExitUnavailable = 3
	ExitNotFound    = 4
	ExitTimeout     = 5
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// UsageError reports a bad argument.
func UsageError(format string, args ...any) *CLIError {
	return &CLIError{Code: ExitUsage, Msg: fmt.Sprintf(format, args...)}
}

// ErrorFor maps a library error onto a CLIError with the matching exit code.
// Errors that are already CLIErrors are returned unchanged.
func ErrorFor(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var unavailable *console.UnavailableError
	switch {
	case errors.As(err, &unavailable):
		return &CLIError{Code: ExitUnavailable, Msg: unavailable.Notice, Err: unavailable.Err}
	case errors.Is(err, mqtt.ErrNoController):
		return &CLIError{Code: ExitUnavailable, Msg: "no controller is running for this session", Err: err}
	case errors.Is(err, console.ErrUnknownVideo), errors.Is(err, controller.ErrVideoNotFound):
		return &CLIError{Code: ExitNotFound, Msg: "video not found", Err: err}
	case errors.Is(err, catalog.ErrNoVideos):
		return &CLIError{Code: ExitNotFound, Msg: "catalog is empty", Err: err}
	case errors.Is(err, console.ErrUnknownDuration):
		return &CLIError{Code: ExitUsage, Msg: "cannot seek by percent before the duration is known", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &CLIError{Code: ExitTimeout, Msg: "timed out", Err: err}
	default:
		return err
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}
