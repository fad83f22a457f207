package cmd

import (
	"errors"
	"fmt"

	"github.com/xdg/bastion/internal/gemini"
	"github.com/xdg/bastion/internal/processor"
	"github.com/xdg/bastion/internal/turn"
)

// Process exit codes besides 0 (success) and 1 (any other failure).
const (
	ExitBlocked = 2 // a command was blocked by policy
	ExitDenied  = 3 // the user declined a confirmation
	ExitAuth    = 4 // the model API rejected the credentials
)

// errDeclined reports that the user declined a confirmation prompt.
var errDeclined = errors.New("declined by user")

// ExitCodeError carries a process exit code. Err, if set, is the message
// shown to the user; a bare ExitCodeError exits silently.
type ExitCodeError struct {
	Code int
	Err  error
}

// NewExitCodeError returns an ExitCodeError without a message.
func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// withExitCode attaches the exit code for well known failures to err.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return err
	}

	var blocked *processor.BlockedError
	var unauthorized *turn.UnauthorizedError
	switch {
	case errors.As(err, &blocked):
		return &ExitCodeError{Code: ExitBlocked, Err: err}
	case errors.Is(err, errDeclined):
		return &ExitCodeError{Code: ExitDenied, Err: err}
	case errors.As(err, &unauthorized), errors.Is(err, gemini.ErrNoAPIKey):
		return &ExitCodeError{Code: ExitAuth, Err: err}
	}
	return err
}
