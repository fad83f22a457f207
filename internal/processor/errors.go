package processor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoExecutor is returned when a prompt needs shell injection but the
// Context has no Executor.
var ErrNoExecutor = errors.New("no shell executor configured")

// BlockedError reports a hard policy denial of an injected command.
// Confirmation cannot override it.
type BlockedError struct {
	CommandName string
	Command     string
	Reason      string
}

func (e *BlockedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "Blocked by configuration."
	}
	return fmt.Sprintf("%s cannot be run. Blocked command: %q. Reason: %s", e.CommandName, e.Command, reason)
}

// ConfirmationRequiredError reports commands that need user approval before
// the prompt can be processed. Approving them into the session allowlist
// and processing again lets the pipeline proceed.
type ConfirmationRequiredError struct {
	CommandsToConfirm []string
}

func (e *ConfirmationRequiredError) Error() string {
	return "shell command confirmation required: " + strings.Join(e.CommandsToConfirm, ", ")
}
